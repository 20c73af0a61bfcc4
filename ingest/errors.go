package ingest

import "fmt"

// Reason says why an image was rejected.
type Reason string

const (
	ReasonInvalidType Reason = "invalid-type"
	ReasonTooLarge    Reason = "too-large"
	ReasonEmpty       Reason = "empty"
	ReasonMissing     Reason = "missing"
)

// ValidationError is a locally recoverable rejection; nothing is sent to the server.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Reason, e.Detail)
}

// Message is the short text shown next to the upload control.
func (e *ValidationError) Message() string {
	switch e.Reason {
	case ReasonInvalidType:
		return "Please upload an image file (PNG, JPG, WEBP)."
	case ReasonTooLarge:
		return "Image must be 10MB or smaller."
	case ReasonEmpty:
		return "The selected file is empty."
	default:
		return "Please add a photo of yourself and a clothing item."
	}
}

// FetchError means a remote image could not be used. The user may retry with another URL.
type FetchError struct {
	URL    string
	Status int
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Reason, e.Status)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Message is the short text shown next to the URL field.
func (e *FetchError) Message() string {
	return "Couldn't load an image from that link. Try another URL or upload the file."
}
