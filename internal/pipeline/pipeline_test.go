package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/billscan/internal/bill"
	"github.com/zombor/billscan/internal/scanning"
)

var _ = Describe("Pipeline", func() {
	var (
		extractor *scriptedExtractor
		staging   *MemoryStaging
		cfg       Config
		p         *Pipeline
		events    *recorder
		upload    Upload
	)

	BeforeEach(func() {
		extractor = newScriptedExtractor()
		staging = NewMemoryStaging()
		cfg = DefaultConfig()
		events = &recorder{}
		upload = Upload{Name: "electric-bill.png", ContentType: "image/png", Data: []byte("png bytes")}
	})

	JustBeforeEach(func() {
		p = New(extractor, WithConfig(cfg), WithStaging(staging))
		p.Subscribe(events.listen)
	})

	Describe("SelectFile", func() {
		JustBeforeEach(func() {
			p.SelectFile(upload)
		})

		When("the file is acceptable", func() {
			It("stages the document and waits for processing", func() {
				ready, ok := p.Current().(CaptureReady)
				Expect(ok).To(BeTrue())
				Expect(ready.Document.Name).To(Equal("electric-bill.png"))
				Expect(ready.Document.ContentType).To(Equal("image/png"))
				Expect(ready.Document.Source).To(Equal(SourceUpload))
				Expect(staging.Len()).To(Equal(1))
			})

			It("emits acquiring then capture ready", func() {
				Expect(events.phases()).To(Equal([]Phase{PhaseAcquiring, PhaseCaptureReady}))
				Expect(events.all()[0].SessionID).To(Equal(uint64(1)))
			})
		})

		When("the file is 11 MiB", func() {
			BeforeEach(func() {
				upload.Size = 11 << 20
			})

			It("fails acquisition with SizeExceeded and returns to idle", func() {
				idle, ok := p.Current().(Idle)
				Expect(ok).To(BeTrue())
				Expect(idle.Err.Reason).To(Equal(SizeExceeded))
				Expect(idle.Err).To(MatchError(ContainSubstring("11 MiB")))
			})

			It("emits one terminal event and stages nothing", func() {
				Expect(events.terminals()).To(HaveLen(1))
				Expect(staging.Len()).To(BeZero())
			})
		})

		When("the declared type is unsupported", func() {
			BeforeEach(func() {
				upload.Name = "bill.docx"
				upload.ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
			})

			It("fails acquisition with UnsupportedType and returns to idle", func() {
				idle, ok := p.Current().(Idle)
				Expect(ok).To(BeTrue())
				Expect(idle.Err.Reason).To(Equal(UnsupportedType))
			})
		})

		When("the accepted types are configured", func() {
			BeforeEach(func() {
				cfg.AcceptedTypes = []string{"application/pdf"}
			})

			It("rejects types outside the configuration", func() {
				idle, ok := p.Current().(Idle)
				Expect(ok).To(BeTrue())
				Expect(idle.Err.Reason).To(Equal(UnsupportedType))
			})
		})

		When("no type is declared", func() {
			BeforeEach(func() {
				upload.Name = "scan.PDF"
				upload.ContentType = ""
			})

			It("infers it from the extension", func() {
				ready, ok := p.Current().(CaptureReady)
				Expect(ok).To(BeTrue())
				Expect(ready.Document.ContentType).To(Equal("application/pdf"))
			})
		})

		When("the declared type carries parameters", func() {
			BeforeEach(func() {
				upload.ContentType = "Image/PNG; name=bill.png"
			})

			It("normalizes it", func() {
				Expect(p.Current().(CaptureReady).Document.ContentType).To(Equal("image/png"))
			})
		})
	})

	Describe("Process", func() {
		When("nothing is staged", func() {
			It("returns an invalid transition error", func() {
				Expect(p.Process()).To(MatchError(ErrInvalidTransition))
			})
		})

		When("a document is staged", func() {
			JustBeforeEach(func() {
				p.SelectFile(upload)
				Expect(p.Process()).To(Succeed())
			})

			It("starts extracting at zero", func() {
				Expect(p.Current()).To(BeAssignableToTypeOf(Extracting{}))
				Expect(Progress(p.Current())).To(Equal(0))
			})

			It("passes the normalized media type to the extractor", func() {
				Eventually(extractor.lastType.Load).Should(Equal("image/png"))
			})

			It("cannot be processed twice", func() {
				Expect(p.Process()).To(MatchError(ErrInvalidTransition))
			})

			It("completes after ticks 0, 10 ... 100", func() {
				for tick := 0; tick <= 100; tick += 10 {
					extractor.tick(tick)
				}
				extractor.succeed(validDraft())

				Eventually(phaseOf(p)).Should(Equal(PhaseCompleted))
				done := p.Current().(Completed)
				Expect(done.Bill.Vendor).NotTo(BeEmpty())
				Expect(done.Bill.Amount.IsNegative()).To(BeFalse())
				Expect(Progress(done)).To(Equal(100))
				Expect(events.progress()).To(Equal([]int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}))
				Expect(events.terminals()).To(HaveLen(1))
			})

			It("ignores ticks that do not move forward", func() {
				extractor.tick(40)
				extractor.tick(20)
				extractor.tick(40)
				extractor.tick(-5)
				extractor.tick(60)
				Eventually(events.progress).Should(Equal([]int{0, 40, 60}))
			})

			It("discards the staged document once completed", func() {
				extractor.succeed(validDraft())
				Eventually(phaseOf(p)).Should(Equal(PhaseCompleted))
				Expect(staging.Len()).To(BeZero())
			})

			It("reports reconciliation mismatches as warnings", func() {
				draft := validDraft()
				total := decimal.RequireFromString("200.00")
				draft.Amount = &total
				extractor.succeed(draft)

				Eventually(phaseOf(p)).Should(Equal(PhaseCompleted))
				Expect(p.Current().(Completed).Warnings).To(HaveLen(1))
			})

			It("fails with MissingRequiredFields when the vendor is absent", func() {
				draft := validDraft()
				draft.Vendor = ""
				extractor.succeed(draft)

				Eventually(phaseOf(p)).Should(Equal(PhaseFailed))
				failed := p.Current().(Failed)
				Expect(failed.Err.Reason).To(Equal(MissingRequiredFields))
				Expect(failed.Err).To(MatchError(bill.ErrValidation))
				Expect(staging.Len()).To(BeZero())
			})

			It("fails with MissingRequiredFields when the amount is absent", func() {
				draft := validDraft()
				draft.Amount = nil
				extractor.succeed(draft)

				Eventually(phaseOf(p)).Should(Equal(PhaseFailed))
				Expect(p.Current().(Failed).Err.Reason).To(Equal(MissingRequiredFields))
			})

			It("fails as Unreadable when the draft breaks other invariants", func() {
				draft := validDraft()
				negative := decimal.RequireFromString("-3.00")
				draft.Amount = &negative
				extractor.succeed(draft)

				Eventually(phaseOf(p)).Should(Equal(PhaseFailed))
				Expect(p.Current().(Failed).Err.Reason).To(Equal(Unreadable))
			})

			It("fails as Unreadable when the recognizer rejects the document", func() {
				extractor.fail(fmt.Errorf("parsing: %w", scanning.ErrUnreadable))

				Eventually(phaseOf(p)).Should(Equal(PhaseFailed))
				Expect(p.Current().(Failed).Err.Reason).To(Equal(Unreadable))
				Expect(p.Retry()).To(MatchError(ErrInvalidTransition))
			})

			It("never reaches 100 on failure", func() {
				extractor.tick(90)
				extractor.tick(100)
				extractor.fail(fmt.Errorf("parsing: %w", scanning.ErrUnreadable))

				Eventually(phaseOf(p)).Should(Equal(PhaseFailed))
				Expect(Progress(p.Current())).To(Equal(90))
			})

			When("the recognizer fails internally", func() {
				JustBeforeEach(func() {
					extractor.tick(30)
					extractor.fail(errors.New("connection reset"))
					Eventually(phaseOf(p)).Should(Equal(PhaseFailed))
				})

				It("reports InternalFailure and keeps the document", func() {
					Expect(p.Current().(Failed).Err.Reason).To(Equal(InternalFailure))
					Expect(staging.Len()).To(Equal(1))
				})

				It("can retry extraction on the same document", func() {
					Expect(p.Retry()).To(Succeed())
					Expect(p.Current()).To(BeAssignableToTypeOf(Extracting{}))
					extractor.succeed(validDraft())
					Eventually(phaseOf(p)).Should(Equal(PhaseCompleted))
					Expect(extractor.calls.Load()).To(Equal(int32(2)))
				})

				It("restarts progress from zero on retry", func() {
					Expect(p.Retry()).To(Succeed())
					Expect(Progress(p.Current())).To(Equal(0))
				})
			})
		})
	})

	Describe("timeouts", func() {
		BeforeEach(func() {
			cfg.ExtractTimeout = 50 * time.Millisecond
		})

		JustBeforeEach(func() {
			p.SelectFile(upload)
			Expect(p.Process()).To(Succeed())
		})

		It("fails with TimedOut rather than completing", func() {
			Eventually(phaseOf(p)).Should(Equal(PhaseFailed))
			failed := p.Current().(Failed)
			Expect(failed.Err.Reason).To(Equal(TimedOut))
			Expect(failed.Err).To(MatchError(context.DeadlineExceeded))
		})

		It("allows a retry", func() {
			Eventually(phaseOf(p)).Should(Equal(PhaseFailed))
			Eventually(extractor.active.Load).Should(BeZero())
			Expect(p.Retry()).To(Succeed())
			extractor.succeed(validDraft())
			Eventually(phaseOf(p)).Should(Equal(PhaseCompleted))
		})

		When("the extractor ignores its context", func() {
			BeforeEach(func() {
				extractor.ignoreCtx = true
			})

			It("still fails with TimedOut", func() {
				extractor.tick(30)
				Eventually(phaseOf(p)).Should(Equal(PhaseFailed))
				failed := p.Current().(Failed)
				Expect(failed.Err.Reason).To(Equal(TimedOut))
				Expect(failed.Progress).To(Equal(30))
				Expect(staging.Len()).To(Equal(1))
			})

			It("drops the result that arrives after the deadline", func() {
				Eventually(phaseOf(p)).Should(Equal(PhaseFailed))
				extractor.succeed(validDraft())

				Consistently(phaseOf(p), 100*time.Millisecond).Should(Equal(PhaseFailed))
				Expect(events.terminals()).To(HaveLen(1))
			})
		})
	})

	Describe("Cancel", func() {
		When("nothing is active", func() {
			It("returns an invalid transition error", func() {
				Expect(p.Cancel()).To(MatchError(ErrInvalidTransition))
			})
		})

		When("a document is staged", func() {
			JustBeforeEach(func() {
				p.SelectFile(upload)
				Expect(p.Cancel()).To(Succeed())
			})

			It("returns to idle without an error", func() {
				Expect(p.Current()).To(Equal(Idle{}))
				Expect(staging.Len()).To(BeZero())
				Expect(events.terminals()).To(BeEmpty())
			})
		})

		When("extraction is running", func() {
			BeforeEach(func() {
				extractor.ignoreCtx = true
			})

			JustBeforeEach(func() {
				p.SelectFile(upload)
				Expect(p.Process()).To(Succeed())
				extractor.tick(50)
				Eventually(events.progress).Should(ContainElement(50))
				Expect(p.Cancel()).To(Succeed())
			})

			It("drops a completion that arrives after cancellation", func() {
				extractor.tick(70)
				extractor.succeed(validDraft())

				Consistently(events.terminals, 100*time.Millisecond).Should(BeEmpty())
				Expect(p.Current()).To(Equal(Idle{}))
				Expect(events.progress()).To(Equal([]int{0, 50}))
			})

			It("drops a failure that arrives after cancellation", func() {
				extractor.fail(errors.New("late failure"))

				Consistently(events.terminals, 100*time.Millisecond).Should(BeEmpty())
				Expect(p.Current()).To(Equal(Idle{}))
			})

			It("cannot be cancelled twice", func() {
				Expect(p.Cancel()).To(MatchError(ErrInvalidTransition))
			})
		})
	})

	Describe("Reset", func() {
		It("is a no-op while idle", func() {
			p.Reset()
			Expect(events.all()).To(BeEmpty())
		})

		It("clears an acquisition error", func() {
			upload.Size = 11 << 20
			p.SelectFile(upload)
			p.Reset()
			Expect(p.Current()).To(Equal(Idle{}))
		})

		It("leaves a completed session", func() {
			p.SelectFile(upload)
			Expect(p.Process()).To(Succeed())
			extractor.succeed(validDraft())
			Eventually(phaseOf(p)).Should(Equal(PhaseCompleted))

			p.Reset()
			Expect(p.Current()).To(Equal(Idle{}))
		})
	})

	Describe("starting a new session while one is active", func() {
		BeforeEach(func() {
			extractor.ignoreCtx = true
		})

		JustBeforeEach(func() {
			p.SelectFile(upload)
			Expect(p.Process()).To(Succeed())
			p.SelectFile(Upload{Name: "water.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")})
		})

		It("cancels the previous session first", func() {
			Expect(events.phases()).To(Equal([]Phase{
				PhaseAcquiring, PhaseCaptureReady, PhaseExtracting,
				PhaseIdle,
				PhaseAcquiring, PhaseCaptureReady,
			}))
			all := events.all()
			Expect(all[3].SessionID).To(Equal(uint64(1)))
			Expect(all[4].SessionID).To(Equal(uint64(2)))
		})

		It("ignores the previous session's result", func() {
			extractor.succeed(validDraft())
			Consistently(phaseOf(p), 100*time.Millisecond).Should(Equal(PhaseCaptureReady))
			Expect(p.Current().(CaptureReady).Document.Name).To(Equal("water.jpg"))
			Expect(staging.Len()).To(Equal(1))
		})
	})

	Describe("listeners", func() {
		It("may call back into the pipeline", func() {
			p.Subscribe(func(ev Event) {
				if _, ok := ev.State.(Completed); ok {
					p.Reset()
				}
			})
			p.SelectFile(upload)
			Expect(p.Process()).To(Succeed())
			extractor.succeed(validDraft())

			Eventually(events.phases).Should(HaveExactElements(
				PhaseAcquiring, PhaseCaptureReady, PhaseExtracting, PhaseCompleted, PhaseIdle,
			))
		})

		It("stop receiving events after unsubscribing", func() {
			other := &recorder{}
			unsubscribe := p.Subscribe(other.listen)
			p.SelectFile(upload)
			unsubscribe()
			p.Reset()

			Expect(other.phases()).To(Equal([]Phase{PhaseAcquiring, PhaseCaptureReady}))
			Expect(events.phases()).To(HaveLen(3))
		})
	})
})

var _ = Describe("Pipeline with the canned recognizer", func() {
	It("runs a document end to end", func() {
		events := &recorder{}
		p := New(scanning.NewCanned(time.Millisecond))
		p.Subscribe(events.listen)

		p.SelectFile(Upload{Name: "bill.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")})
		Expect(p.Process()).To(Succeed())

		Eventually(phaseOf(p)).Should(Equal(PhaseCompleted))
		Expect(events.terminals()).To(HaveLen(1))

		progress := events.progress()
		Expect(progress).NotTo(BeEmpty())
		for i := 1; i < len(progress); i++ {
			Expect(progress[i]).To(BeNumerically(">", progress[i-1]))
		}
		Expect(progress[len(progress)-1]).To(BeNumerically("<", 100))

		done := p.Current().(Completed)
		Expect(done.Bill.Vendor).To(Equal("Electric Company Inc."))
		Expect(done.Warnings).To(BeEmpty())
	})
})
