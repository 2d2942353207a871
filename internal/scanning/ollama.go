package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/billscan/internal/bill"
)

// Ollama implements the Extractor interface using a local Ollama server
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama Extractor instance.
// Vision models such as llava or qwen2-vl are required.
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models are slow on CPU
		},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Extract streams the normalized bill image through Ollama's chat API.
// Progress follows the streamed chunks and stops short of 100 until the reply parses.
func (o *Ollama) Extract(ctx context.Context, data []byte, contentType string, progress ProgressFunc) (*bill.Draft, error) {
	report(progress, 0)
	pngData, err := normalizeDocument(data, contentType)
	if err != nil {
		return nil, err
	}
	report(progress, 10)

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: true,
		Format: "json",
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading bills and invoices. Read every line of text before answering.",
			},
			{
				Role:    "user",
				Content: billScanPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}
	report(progress, 20)

	// One JSON object per line, the last one has done set
	var content strings.Builder
	dec := json.NewDecoder(resp.Body)
	for chunks := 1; ; chunks++ {
		var chunk ollamaChatResponse
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		content.WriteString(chunk.Message.Content)
		report(progress, min(20+chunks, 95))
		if chunk.Done {
			break
		}
	}

	draft, err := parseDraftJSON(content.String())
	if err != nil {
		return nil, fmt.Errorf("parsing bill data: %w", err)
	}
	report(progress, 100)
	return draft, nil
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
