package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zombor/billscan/internal/bill"
	"github.com/zombor/billscan/internal/scanning"
)

// Pipeline drives one capture surface. It holds at most one session;
// starting a new one cancels the current one.
type Pipeline struct {
	extractor scanning.Extractor
	staging   Staging
	cfg       Config

	mu      sync.Mutex
	session uint64 // ID of the most recent session
	gen     uint64 // bumped whenever in-flight work must be ignored
	state   State
	device  CaptureDevice
	staged  string
	cancel  context.CancelFunc

	dispatch  sync.Mutex
	pending   []Event
	listeners []listenerEntry
	nextID    int
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithConfig sets the acquisition and extraction limits
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// WithStaging sets where acquired documents are kept until extraction
func WithStaging(s Staging) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.staging = s
		}
	}
}

// New creates an idle Pipeline around an extractor
func New(extractor scanning.Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: extractor,
		staging:   NewMemoryStaging(),
		cfg:       DefaultConfig(),
		state:     Idle{},
	}
	for _, o := range opts {
		o(p)
	}
	p.cfg = p.cfg.withDefaults()
	return p
}

// Current returns the current state
func (p *Pipeline) Current() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SessionID returns the ID of the most recent session, 0 before the first one
func (p *Pipeline) SessionID() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// SelectFile starts a session from an uploaded file. The file is validated
// and staged; the pipeline ends in CaptureReady or in Idle with an error.
func (p *Pipeline) SelectFile(upload Upload) {
	defer p.flush()
	p.mu.Lock()
	defer p.mu.Unlock()

	p.beginLocked(SourceUpload)

	contentType := upload.ContentType
	if contentType == "" {
		contentType = inferContentType(upload.Name)
	}
	size := max(upload.Size, int64(len(upload.Data)))
	mediaType, acqErr := p.cfg.checkDocument(contentType, size)
	if acqErr != nil {
		p.failAcquisitionLocked(acqErr)
		return
	}
	p.stageLocked(upload.Name, mediaType, upload.Data, SourceUpload)
}

// StartCapture starts a session from a capture device and opens it.
// On success the pipeline stays in Acquiring until CaptureFrame.
func (p *Pipeline) StartCapture(ctx context.Context, device CaptureDevice) {
	p.mu.Lock()
	p.beginLocked(SourceCamera)
	if device == nil {
		p.failAcquisitionLocked(&AcquisitionError{Reason: DeviceUnavailable, Err: ErrDeviceUnavailable})
		p.mu.Unlock()
		p.flush()
		return
	}
	p.device = device
	gen := p.gen
	p.mu.Unlock()
	p.flush()

	err := device.Open(ctx)

	defer p.flush()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return
	}
	if err != nil {
		p.releaseDeviceLocked()
		p.failAcquisitionLocked(deviceError(err))
	}
}

// CaptureFrame grabs a frame from the open device and stages it
func (p *Pipeline) CaptureFrame(ctx context.Context) error {
	p.mu.Lock()
	if _, ok := p.state.(Acquiring); !ok || p.device == nil {
		phase := p.state.Phase()
		p.mu.Unlock()
		return fmt.Errorf("%w: capture frame while %s", ErrInvalidTransition, phase)
	}
	device, gen := p.device, p.gen
	p.mu.Unlock()

	frame, err := device.Capture(ctx)

	defer p.flush()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return nil
	}
	p.releaseDeviceLocked()
	if err != nil {
		p.failAcquisitionLocked(deviceError(err))
		return nil
	}
	mediaType, acqErr := p.cfg.checkDocument(frame.ContentType, int64(len(frame.Data)))
	if acqErr != nil {
		p.failAcquisitionLocked(acqErr)
		return nil
	}
	p.stageLocked("capture", mediaType, frame.Data, SourceCamera)
	return nil
}

// Process starts extraction of the staged document
func (p *Pipeline) Process() error {
	defer p.flush()
	p.mu.Lock()
	defer p.mu.Unlock()

	ready, ok := p.state.(CaptureReady)
	if !ok {
		return fmt.Errorf("%w: process while %s", ErrInvalidTransition, p.state.Phase())
	}
	p.extractLocked(ready.Document)
	return nil
}

// Retry re-runs extraction on the same staged document after an
// internal failure or timeout
func (p *Pipeline) Retry() error {
	defer p.flush()
	p.mu.Lock()
	defer p.mu.Unlock()

	failed, ok := p.state.(Failed)
	if !ok || !failed.Err.Reason.Retryable() || p.staged == "" {
		return fmt.Errorf("%w: retry while %s", ErrInvalidTransition, p.state.Phase())
	}
	p.extractLocked(failed.doc())
	return nil
}

// Cancel abandons the active session. Nothing it started will report afterwards.
func (p *Pipeline) Cancel() error {
	defer p.flush()
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state.(type) {
	case Acquiring, CaptureReady, Extracting:
	default:
		return fmt.Errorf("%w: cancel while %s", ErrInvalidTransition, p.state.Phase())
	}
	slog.Debug("Cancelling bill session", "session", p.session, "phase", p.state.Phase())
	p.teardownLocked()
	p.setLocked(Idle{})
	return nil
}

// Reset returns to Idle from any state and drops the session's resources
func (p *Pipeline) Reset() {
	defer p.flush()
	p.mu.Lock()
	defer p.mu.Unlock()

	if idle, ok := p.state.(Idle); ok && idle.Err == nil {
		return
	}
	p.teardownLocked()
	p.setLocked(Idle{})
}

// beginLocked ends any current session and opens a new one in Acquiring
func (p *Pipeline) beginLocked(source Source) {
	if _, idle := p.state.(Idle); !idle {
		p.teardownLocked()
		p.setLocked(Idle{})
	} else {
		p.gen++
	}
	p.session++
	p.setLocked(Acquiring{Source: source})
}

func (p *Pipeline) stageLocked(name, mediaType string, data []byte, source Source) {
	handle, err := p.staging.Stage(stagingName(p.session, name), data)
	if err != nil {
		// Staging is local; failing to write means we cannot hold the document
		p.failAcquisitionLocked(&AcquisitionError{Reason: DeviceUnavailable, Err: err})
		return
	}
	p.staged = handle
	p.setLocked(CaptureReady{Document: Document{
		Name:        name,
		ContentType: mediaType,
		Size:        int64(len(data)),
		Source:      source,
		handle:      handle,
	}})
}

func (p *Pipeline) failAcquisitionLocked(err *AcquisitionError) {
	slog.Warn("Bill acquisition failed", "session", p.session, "reason", err.Reason, "error", err.Err)
	p.teardownLocked()
	p.setLocked(Idle{Err: err})
}

func (p *Pipeline) extractLocked(doc Document) {
	p.gen++
	gen := p.gen
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if p.cfg.ExtractTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), p.cfg.ExtractTimeout)
		// The deadline fails the session even if the extractor never returns
		context.AfterFunc(ctx, func() { p.expire(ctx, gen, doc) })
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	p.cancel = cancel
	p.setLocked(Extracting{Document: doc, Progress: 0})
	go p.run(ctx, gen, doc)
}

// expire fails a live extraction whose deadline passed. Whatever the
// extractor returns later is dropped by the generation check in finish.
func (p *Pipeline) expire(ctx context.Context, gen uint64, doc Document) {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return
	}

	defer p.flush()
	p.mu.Lock()
	defer p.mu.Unlock()

	extracting, ok := p.state.(Extracting)
	if p.gen != gen || !ok {
		return
	}
	p.gen++
	p.cancel = nil
	extErr := &ExtractionError{Reason: TimedOut, Err: context.DeadlineExceeded}
	slog.Warn("Bill extraction failed", "session", p.session, "document", doc.Name, "reason", extErr.Reason, "error", extErr.Err)
	p.setLocked(Failed{Err: extErr, Progress: extracting.Progress, document: doc})
}

func (p *Pipeline) run(ctx context.Context, gen uint64, doc Document) {
	data, err := p.staging.Load(doc.handle)
	if err != nil {
		p.finish(ctx, gen, doc, nil, fmt.Errorf("loading staged document: %w", err))
		return
	}
	draft, err := p.extractor.Extract(ctx, data, doc.ContentType, func(percent int) {
		p.progress(gen, percent)
	})
	p.finish(ctx, gen, doc, draft, err)
}

// progress records a tick if it belongs to the live session and moves forward.
// 100 is held back until the result has been validated.
func (p *Pipeline) progress(gen uint64, percent int) {
	defer p.flush()
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gen != gen {
		return
	}
	extracting, ok := p.state.(Extracting)
	if !ok || percent <= extracting.Progress || percent >= 100 {
		return
	}
	extracting.Progress = percent
	p.setLocked(extracting)
}

func (p *Pipeline) finish(ctx context.Context, gen uint64, doc Document, draft *bill.Draft, err error) {
	defer p.flush()
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gen != gen {
		slog.Debug("Dropping result of abandoned bill session", "session", p.session)
		return
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	reached := Progress(p.state)
	b, extErr := classify(ctx, draft, err)
	if extErr != nil {
		slog.Warn("Bill extraction failed", "session", p.session, "document", doc.Name, "reason", extErr.Reason, "error", extErr.Err)
		if !extErr.Reason.Retryable() {
			p.discardLocked()
		}
		p.setLocked(Failed{Err: extErr, Progress: reached, document: doc})
		return
	}

	p.discardLocked()
	p.setLocked(Completed{Bill: b, Warnings: b.Reconcile()})
	slog.Info("Bill extracted", "session", p.session, "vendor", b.Vendor, "amount", b.Amount.StringFixed(2))
}

// classify validates an extraction outcome, mapping failures onto the taxonomy
func classify(ctx context.Context, draft *bill.Draft, err error) (bill.Bill, *ExtractionError) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return bill.Bill{}, &ExtractionError{Reason: TimedOut, Err: context.DeadlineExceeded}
	case err != nil && errors.Is(err, scanning.ErrUnreadable):
		return bill.Bill{}, &ExtractionError{Reason: Unreadable, Err: err}
	case err != nil:
		return bill.Bill{}, &ExtractionError{Reason: InternalFailure, Err: err}
	case draft == nil:
		return bill.Bill{}, &ExtractionError{Reason: Unreadable, Err: errors.New("recognizer returned no data")}
	}

	b, verr := draft.Finalize()
	if verr != nil {
		var invalid *bill.ValidationError
		if errors.As(verr, &invalid) && invalid.MissingRequired() {
			return bill.Bill{}, &ExtractionError{Reason: MissingRequiredFields, Err: verr}
		}
		return bill.Bill{}, &ExtractionError{Reason: Unreadable, Err: verr}
	}
	return b, nil
}

// teardownLocked stops in-flight work and releases everything the session holds
func (p *Pipeline) teardownLocked() {
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.releaseDeviceLocked()
	p.discardLocked()
}

func (p *Pipeline) releaseDeviceLocked() {
	if p.device == nil {
		return
	}
	if err := p.device.Release(); err != nil {
		slog.Warn("Failed to release capture device", "session", p.session, "error", err)
	}
	p.device = nil
}

func (p *Pipeline) discardLocked() {
	if p.staged == "" {
		return
	}
	if err := p.staging.Discard(p.staged); err != nil {
		slog.Warn("Failed to discard staged document", "handle", p.staged, "error", err)
	}
	p.staged = ""
}

func (p *Pipeline) setLocked(st State) {
	slog.Debug("Bill pipeline transition", "session", p.session, "from", p.state.Phase(), "to", st.Phase(), "progress", Progress(st))
	p.state = st
	p.pending = append(p.pending, Event{SessionID: p.session, State: st})
}
