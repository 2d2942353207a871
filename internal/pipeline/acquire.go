package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// Source says where a document came from
type Source string

const (
	SourceCamera Source = "camera"
	SourceUpload Source = "upload"
)

// Upload is a file handed over by a file picker or drag and drop
type Upload struct {
	Name        string
	ContentType string // declared media type, inferred from Name when empty
	Size        int64  // declared size, len(Data) is used when larger
	Data        []byte
}

// Frame is a still image grabbed from a capture device
type Frame struct {
	ContentType string
	Data        []byte
}

// CaptureDevice is a camera or scanner. Open and Capture errors should wrap
// ErrPermissionDenied or ErrDeviceUnavailable.
type CaptureDevice interface {
	// Open requests access to the device
	Open(ctx context.Context) error
	// Capture grabs one frame
	Capture(ctx context.Context) (Frame, error)
	// Release gives the device back
	Release() error
}

// Document describes a staged, validated document
type Document struct {
	Name        string
	ContentType string
	Size        int64
	Source      Source
	handle      string
}

// inferContentType guesses a media type from a file extension
func inferContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".gif":
		return "image/gif"
	}
	return "application/octet-stream"
}

// checkDocument applies the type and size rules to a candidate document
func (c Config) checkDocument(contentType string, size int64) (string, *AcquisitionError) {
	mediaType := normalizeMediaType(contentType)
	if !c.accepts(mediaType) {
		return "", &AcquisitionError{
			Reason: UnsupportedType,
			Err:    fmt.Errorf("media type %q is not one of %s", mediaType, strings.Join(c.AcceptedTypes, ", ")),
		}
	}
	if size > c.MaxDocumentBytes {
		return "", &AcquisitionError{
			Reason: SizeExceeded,
			Err: fmt.Errorf("document is %s, the limit is %s",
				humanize.IBytes(uint64(size)), humanize.IBytes(uint64(c.MaxDocumentBytes))),
		}
	}
	return mediaType, nil
}

// deviceError classifies a capture device failure
func deviceError(err error) *AcquisitionError {
	if errors.Is(err, ErrPermissionDenied) {
		return &AcquisitionError{Reason: PermissionDenied, Err: err}
	}
	return &AcquisitionError{Reason: DeviceUnavailable, Err: err}
}
