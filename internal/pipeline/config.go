package pipeline

import (
	"strings"
	"time"
)

// DefaultMaxDocumentBytes is the default document size ceiling (10 MiB)
const DefaultMaxDocumentBytes int64 = 10 << 20

// DefaultAcceptedTypes are the media types accepted when none are configured
var DefaultAcceptedTypes = []string{"image/jpeg", "image/png", "image/heic", "application/pdf"}

// Config controls acquisition validation and extraction limits
type Config struct {
	// AcceptedTypes lists the media types a document may declare
	AcceptedTypes []string
	// MaxDocumentBytes is the largest document accepted
	MaxDocumentBytes int64
	// ExtractTimeout bounds a single extraction. Zero disables the timeout.
	ExtractTimeout time.Duration
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		AcceptedTypes:    append([]string(nil), DefaultAcceptedTypes...),
		MaxDocumentBytes: DefaultMaxDocumentBytes,
	}
}

// withDefaults fills unset fields and normalizes the accepted types
func (c Config) withDefaults() Config {
	if len(c.AcceptedTypes) == 0 {
		c.AcceptedTypes = DefaultAcceptedTypes
	}
	if c.MaxDocumentBytes <= 0 {
		c.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	types := make([]string, 0, len(c.AcceptedTypes))
	for _, t := range c.AcceptedTypes {
		if t = normalizeMediaType(t); t != "" {
			types = append(types, t)
		}
	}
	c.AcceptedTypes = types
	return c
}

func (c Config) accepts(mediaType string) bool {
	for _, t := range c.AcceptedTypes {
		if t == mediaType {
			return true
		}
	}
	return false
}

func normalizeMediaType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
