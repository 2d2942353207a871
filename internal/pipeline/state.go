package pipeline

import "github.com/zombor/billscan/internal/bill"

// Phase tags the current State
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAcquiring
	PhaseCaptureReady
	PhaseExtracting
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAcquiring:
		return "acquiring"
	case PhaseCaptureReady:
		return "capture_ready"
	case PhaseExtracting:
		return "extracting"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// State is the pipeline's current state. It is implemented only by the
// types in this file, so a state carries exactly the data valid for it.
type State interface {
	Phase() Phase
	state()
}

// Idle means no document is held. Err is set when acquisition just failed.
type Idle struct {
	Err *AcquisitionError
}

// Acquiring means a capture device is open or a file is being validated
type Acquiring struct {
	Source Source
}

// CaptureReady means a validated document is staged and waiting for Process
type CaptureReady struct {
	Document Document
}

// Extracting means the recognizer is running
type Extracting struct {
	Document Document
	Progress int
}

// Completed carries the validated bill. Warnings are advisory.
type Completed struct {
	Bill     bill.Bill
	Warnings []string
}

// Failed carries the reason extraction stopped. Progress is where it stopped.
type Failed struct {
	Err      *ExtractionError
	Progress int

	document Document // kept for Retry
}

func (f Failed) doc() Document {
	return f.document
}

func (Idle) Phase() Phase         { return PhaseIdle }
func (Acquiring) Phase() Phase    { return PhaseAcquiring }
func (CaptureReady) Phase() Phase { return PhaseCaptureReady }
func (Extracting) Phase() Phase   { return PhaseExtracting }
func (Completed) Phase() Phase    { return PhaseCompleted }
func (Failed) Phase() Phase       { return PhaseFailed }

func (Idle) state()         {}
func (Acquiring) state()    {}
func (CaptureReady) state() {}
func (Extracting) state()   {}
func (Completed) state()    {}
func (Failed) state()       {}

// Progress returns the completion percentage implied by s
func Progress(s State) int {
	switch st := s.(type) {
	case Extracting:
		return st.Progress
	case Completed:
		return 100
	case Failed:
		return st.Progress
	}
	return 0
}
