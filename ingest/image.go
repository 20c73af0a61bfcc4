// Package ingest turns user-supplied images into validated, base64-encoded payloads.
package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageBytes is the largest accepted image.
const MaxImageBytes = 10 << 20

// File is an image source as handed over by a file picker, drop or paste.
// ContentType is the declared type; when empty it is sniffed from Data.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Image is an accepted image. Its payload is derived from its bytes once, at acceptance,
// and never changes; replacing the image means accepting a new one.
type Image struct {
	name     string
	mimeType string
	source   []byte
	payload  string
	preview  string
	previews *PreviewRegistry
}

func (img *Image) Name() string     { return img.name }
func (img *Image) MIMEType() string { return img.mimeType }
func (img *Image) Size() int        { return len(img.source) }

// Bytes returns the raw image. Callers must not modify it.
func (img *Image) Bytes() []byte { return img.source }

// Payload returns the base64 encoding of Bytes, without a data-URI prefix.
func (img *Image) Payload() string { return img.payload }

// Preview returns the local preview handle, valid until Release.
func (img *Image) Preview() string { return img.preview }

// Release revokes the preview handle. It is safe to call more than once.
func (img *Image) Release() {
	if img == nil || img.previews == nil {
		return
	}
	img.previews.Revoke(img.preview)
}

// Ingestor accepts images from every supported source.
type Ingestor struct {
	previews  *PreviewRegistry
	client    httpDoer
	renderers []PageRenderer
}

// NewIngestor returns an Ingestor that fetches remote images with client.
// A nil client uses a default client with a 30 second timeout. Renderers are tried in
// order when a product page has no image in its static HTML.
func NewIngestor(client httpDoer, renderers ...PageRenderer) *Ingestor {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &Ingestor{previews: NewPreviewRegistry(), client: client, renderers: renderers}
}

// Previews exposes the registry holding preview handles.
func (in *Ingestor) Previews() *PreviewRegistry {
	return in.previews
}

// AcceptFile validates f and encodes it.
func (in *Ingestor) AcceptFile(f File) (*Image, error) {
	contentType := f.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(f.Data).String()
	}
	if err := validate(contentType, len(f.Data)); err != nil {
		return nil, err
	}

	// The caller may reuse its buffer; the payload must keep matching the source.
	data := bytes.Clone(f.Data)
	payload := StripDataURIPrefix(EncodeDataURI(contentType, data))
	return &Image{
		name:     f.Name,
		mimeType: contentType,
		source:   data,
		payload:  payload,
		preview:  in.previews.Register(data),
		previews: in.previews,
	}, nil
}

// AcceptPath reads and accepts a file from disk.
func (in *Ingestor) AcceptPath(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() > MaxImageBytes {
		return nil, &ValidationError{Reason: ReasonTooLarge, Detail: fmt.Sprintf("%d bytes", info.Size())}
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return in.AcceptFile(File{Name: filepath.Base(path), Data: data})
}

func validate(contentType string, size int) error {
	if !strings.HasPrefix(contentType, "image/") {
		return &ValidationError{Reason: ReasonInvalidType, Detail: contentType}
	}
	if size == 0 {
		return &ValidationError{Reason: ReasonEmpty}
	}
	if size > MaxImageBytes {
		return &ValidationError{Reason: ReasonTooLarge, Detail: fmt.Sprintf("%d bytes", size)}
	}
	return nil
}

// EncodeDataURI renders data as a base64 data URI.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// StripDataURIPrefix drops a leading "data:<mime>;base64," so only the payload remains.
// Strings without the prefix are returned trimmed but otherwise unchanged.
func StripDataURIPrefix(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ";base64,"); i >= 0 {
		return s[i+len(";base64,"):]
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[i+1:]
	}
	return s
}
