package pipeline

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Camera capture", func() {
	var (
		extractor *scriptedExtractor
		staging   *MemoryStaging
		cfg       Config
		p         *Pipeline
		events    *recorder
		device    *fakeDevice
		ctx       context.Context
	)

	BeforeEach(func() {
		extractor = newScriptedExtractor()
		staging = NewMemoryStaging()
		cfg = DefaultConfig()
		events = &recorder{}
		device = &fakeDevice{frame: Frame{ContentType: "image/jpeg", Data: []byte("jpeg frame")}}
		ctx = context.Background()
	})

	JustBeforeEach(func() {
		p = New(extractor, WithConfig(cfg), WithStaging(staging))
		p.Subscribe(events.listen)
	})

	When("permission is refused", func() {
		BeforeEach(func() {
			device.openErr = fmt.Errorf("user said no: %w", ErrPermissionDenied)
		})

		It("fails acquisition with PermissionDenied and releases the device", func() {
			p.StartCapture(ctx, device)
			idle, ok := p.Current().(Idle)
			Expect(ok).To(BeTrue())
			Expect(idle.Err.Reason).To(Equal(PermissionDenied))
			Expect(idle.Err).To(MatchError(ErrPermissionDenied))
			Expect(device.released.Load()).To(Equal(int32(1)))
			Expect(events.terminals()).To(HaveLen(1))
		})
	})

	When("there is no device", func() {
		BeforeEach(func() {
			device.openErr = errors.New("no video input")
		})

		It("fails acquisition with DeviceUnavailable", func() {
			p.StartCapture(ctx, device)
			Expect(p.Current().(Idle).Err.Reason).To(Equal(DeviceUnavailable))
		})
	})

	When("the device opens", func() {
		JustBeforeEach(func() {
			p.StartCapture(ctx, device)
		})

		It("stays in Acquiring from the camera", func() {
			Expect(p.Current()).To(Equal(Acquiring{Source: SourceCamera}))
			Expect(device.released.Load()).To(BeZero())
		})

		It("stages a captured frame and releases the device", func() {
			Expect(p.CaptureFrame(ctx)).To(Succeed())
			ready, ok := p.Current().(CaptureReady)
			Expect(ok).To(BeTrue())
			Expect(ready.Document.Source).To(Equal(SourceCamera))
			Expect(ready.Document.ContentType).To(Equal("image/jpeg"))
			Expect(device.released.Load()).To(Equal(int32(1)))
			Expect(staging.Len()).To(Equal(1))
		})

		It("releases the device on cancel", func() {
			Expect(p.Cancel()).To(Succeed())
			Expect(p.Current()).To(Equal(Idle{}))
			Expect(device.released.Load()).To(Equal(int32(1)))
			Expect(p.CaptureFrame(ctx)).To(MatchError(ErrInvalidTransition))
		})

		It("releases the device when an upload replaces the session", func() {
			p.SelectFile(Upload{Name: "bill.png", Data: []byte("png")})
			Expect(device.released.Load()).To(Equal(int32(1)))
			Expect(p.Current()).To(BeAssignableToTypeOf(CaptureReady{}))
			Expect(p.SessionID()).To(Equal(uint64(2)))
		})

		When("the capture fails", func() {
			BeforeEach(func() {
				device.captureErr = fmt.Errorf("camera unplugged: %w", ErrDeviceUnavailable)
			})

			It("fails acquisition with DeviceUnavailable", func() {
				Expect(p.CaptureFrame(ctx)).To(Succeed())
				Expect(p.Current().(Idle).Err.Reason).To(Equal(DeviceUnavailable))
				Expect(device.released.Load()).To(Equal(int32(1)))
			})
		})

		When("the frame is too large", func() {
			BeforeEach(func() {
				cfg.MaxDocumentBytes = 4
			})

			It("fails acquisition with SizeExceeded", func() {
				Expect(p.CaptureFrame(ctx)).To(Succeed())
				Expect(p.Current().(Idle).Err.Reason).To(Equal(SizeExceeded))
				Expect(staging.Len()).To(BeZero())
			})
		})
	})

	When("no device is given", func() {
		It("fails acquisition with DeviceUnavailable instead of panicking", func() {
			Expect(func() { p.StartCapture(ctx, nil) }).NotTo(Panic())
			idle, ok := p.Current().(Idle)
			Expect(ok).To(BeTrue())
			Expect(idle.Err.Reason).To(Equal(DeviceUnavailable))
			Expect(idle.Err).To(MatchError(ErrDeviceUnavailable))
			Expect(events.phases()).To(Equal([]Phase{PhaseAcquiring, PhaseIdle}))
			Expect(events.terminals()).To(HaveLen(1))
		})
	})

	When("the session is cancelled while the device is opening", func() {
		BeforeEach(func() {
			device.openGate = make(chan struct{})
		})

		It("releases the device and reports nothing further", func() {
			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				p.StartCapture(ctx, device)
			}()

			Eventually(phaseOf(p)).Should(Equal(PhaseAcquiring))
			Expect(p.Cancel()).To(Succeed())
			close(device.openGate)
			Eventually(done).Should(BeClosed())

			Expect(p.Current()).To(Equal(Idle{}))
			Expect(device.released.Load()).To(Equal(int32(1)))
			Expect(events.terminals()).To(BeEmpty())
		})
	})
})
