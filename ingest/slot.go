package ingest

import "sync"

// Slot holds at most one image for one upload position (person or article).
// A new image replaces the old one wholesale and releases its preview.
type Slot struct {
	mu  sync.Mutex
	img *Image
}

// Current returns the image in the slot, or nil.
func (s *Slot) Current() *Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// Replace stores img, releasing the previous image.
func (s *Slot) Replace(img *Image) {
	s.mu.Lock()
	old := s.img
	s.img = img
	s.mu.Unlock()
	if old != nil && old != img {
		old.Release()
	}
}

// Load stores img only when err is nil and img is not nil; otherwise the slot is unchanged
// and err is returned. It is meant to wrap an Accept call directly.
func (s *Slot) Load(img *Image, err error) error {
	if err != nil {
		return err
	}
	if img != nil {
		s.Replace(img)
	}
	return nil
}

// Clear empties the slot, releasing its image.
func (s *Slot) Clear() {
	s.Replace(nil)
}
