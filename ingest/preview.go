package ingest

import (
	"sync"

	"github.com/google/uuid"
)

const previewScheme = "blob:fitcheckr/"

// PreviewRegistry hands out local handles for rendering images before upload.
type PreviewRegistry struct {
	mu      sync.Mutex
	handles map[string][]byte
}

func NewPreviewRegistry() *PreviewRegistry {
	return &PreviewRegistry{handles: make(map[string][]byte)}
}

// Register returns a new handle resolving to data.
func (p *PreviewRegistry) Register(data []byte) string {
	handle := previewScheme + uuid.NewString()
	p.mu.Lock()
	p.handles[handle] = data
	p.mu.Unlock()
	return handle
}

// Resolve returns the bytes behind handle while it is live.
func (p *PreviewRegistry) Resolve(handle string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.handles[handle]
	return data, ok
}

// Revoke invalidates handle.
func (p *PreviewRegistry) Revoke(handle string) {
	p.mu.Lock()
	delete(p.handles, handle)
	p.mu.Unlock()
}

// Len is the number of live handles.
func (p *PreviewRegistry) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}
