package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func sampleImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		img.Set(x, x, color.Black)
	}
	return img
}

type progressRecorder struct {
	mu     sync.Mutex
	values []int
}

func (p *progressRecorder) record(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, percent)
}

func (p *progressRecorder) snapshot() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values...)
}

var _ = Describe("normalizeDocument", func() {
	It("passes PNG data through untouched", func() {
		var buf bytes.Buffer
		Expect(png.Encode(&buf, sampleImage())).To(Succeed())
		out, err := normalizeDocument(buf.Bytes(), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(buf.Bytes()))
	})

	It("converts JPEG to PNG", func() {
		var buf bytes.Buffer
		Expect(jpeg.Encode(&buf, sampleImage(), nil)).To(Succeed())
		out, err := normalizeDocument(buf.Bytes(), "IMAGE/JPEG ")
		Expect(err).NotTo(HaveOccurred())
		_, format, err := image.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
	})

	It("marks undecodable images unreadable", func() {
		_, err := normalizeDocument([]byte("not an image"), "image/jpeg")
		Expect(err).To(MatchError(ErrUnreadable))
	})

	It("recognizes HEIC signatures", func() {
		Expect(isHEIC([]byte("\x00\x00\x00\x18ftypheic\x00\x00"))).To(BeTrue())
		Expect(isHEIC([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x00"))).To(BeFalse())
	})
})

var _ = Describe("Canned", func() {
	var (
		canned   *Canned
		recorder *progressRecorder
	)

	BeforeEach(func() {
		canned = NewCanned(time.Millisecond)
		recorder = &progressRecorder{}
	})

	It("ticks progress from 0 to 100", func() {
		draft, err := canned.Extract(context.Background(), []byte("bill"), "image/png", recorder.record)
		Expect(err).NotTo(HaveOccurred())
		Expect(draft.Vendor).To(Equal("Electric Company Inc."))
		Expect(recorder.snapshot()).To(Equal([]int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}))
	})

	It("returns a copy of its draft", func() {
		draft, err := canned.Extract(context.Background(), []byte("bill"), "image/png", nil)
		Expect(err).NotTo(HaveOccurred())
		draft.LineItems[0].Description = "changed"
		Expect(canned.Draft.LineItems[0].Description).To(Equal("Electricity usage"))
	})

	It("stops when the context is cancelled", func() {
		canned.Interval = time.Hour
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := canned.Extract(ctx, []byte("bill"), "image/png", recorder.record)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("rejects empty documents as unreadable", func() {
		_, err := canned.Extract(context.Background(), nil, "image/png", nil)
		Expect(err).To(MatchError(ErrUnreadable))
	})
})

var _ = Describe("Ollama", func() {
	var (
		server   *ghttp.Server
		ollama   *Ollama
		pngData  []byte
		recorder *progressRecorder
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		ollama, err = NewOllama(server.URL(), "llava")
		Expect(err).NotTo(HaveOccurred())

		var buf bytes.Buffer
		Expect(png.Encode(&buf, sampleImage())).To(Succeed())
		pngData = buf.Bytes()
		recorder = &progressRecorder{}
	})

	AfterEach(func() {
		server.Close()
	})

	When("the model returns a bill", func() {
		BeforeEach(func() {
			reply := ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: `{"vendor": "City Water Services", "amount": 78.50, "category": "water"}`},
				Done:    true,
			}
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					var req ollamaChatRequest
					Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
					Expect(req.Model).To(Equal("llava"))
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(HaveLen(1))
					Expect(req.Stream).To(BeTrue())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, reply),
			))
		})

		It("parses the draft", func() {
			draft, err := ollama.Extract(context.Background(), pngData, "image/png", recorder.record)
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.Vendor).To(Equal("City Water Services"))
			Expect(draft.Amount.StringFixed(2)).To(Equal("78.50"))
			Expect(recorder.snapshot()).To(HaveExactElements(0, 10, 20, 21, 100))
		})
	})

	When("the model streams its reply", func() {
		BeforeEach(func() {
			chunks := []ollamaChatResponse{
				{Message: ollamaMessage{Role: "assistant", Content: `{"vendor": "Sky`}},
				{Message: ollamaMessage{Role: "assistant", Content: ` Airlines", "amount": `}},
				{Message: ollamaMessage{Role: "assistant", Content: `612.00}`}, Done: true},
			}
			var body bytes.Buffer
			for _, c := range chunks {
				Expect(json.NewEncoder(&body).Encode(c)).To(Succeed())
			}
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, body.String()))
		})

		It("joins the chunks and reports progress per chunk", func() {
			draft, err := ollama.Extract(context.Background(), pngData, "image/png", recorder.record)
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.Vendor).To(Equal("Sky Airlines"))
			Expect(draft.Amount.StringFixed(2)).To(Equal("612.00"))
			Expect(recorder.snapshot()).To(HaveExactElements(0, 10, 20, 21, 22, 23, 100))
		})
	})

	When("the API fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "boom"))
		})

		It("returns an error that is not an unreadable document", func() {
			_, err := ollama.Extract(context.Background(), pngData, "image/png", nil)
			Expect(err).To(MatchError(ContainSubstring("status 500")))
			Expect(err).NotTo(MatchError(ErrUnreadable))
		})
	})

	When("the model answers with prose", func() {
		BeforeEach(func() {
			reply := ollamaChatResponse{Message: ollamaMessage{Content: "I cannot read this bill."}, Done: true}
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, reply))
		})

		It("returns an unreadable error", func() {
			_, err := ollama.Extract(context.Background(), pngData, "image/png", nil)
			Expect(err).To(MatchError(ErrUnreadable))
		})
	})
})
