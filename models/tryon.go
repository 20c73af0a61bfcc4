package models

// TryOnRequest represents the request body for virtual try-on.
// Only ArticleImages[0] is composited; multi-garment try-on is not supported.
type TryOnRequest struct {
	UserImage     string   `json:"userImage"`
	ArticleImages []string `json:"articleImages"`
}

// TryOnResponse is the body of a 200 (success) or 422 (no image) reply.
type TryOnResponse struct {
	Success  bool   `json:"success"`
	Base64   string `json:"base64,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Analysis string `json:"analysis,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply other than 422.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// TryOnStatus is the terminal outcome of one try-on attempt.
type TryOnStatus string

const (
	TryOnSuccess TryOnStatus = "success"
	TryOnNoImage TryOnStatus = "no-image-produced"
	TryOnFailed  TryOnStatus = "failed"
)

// DefaultSuccessMessage is used when the model returns an image without any text.
const DefaultSuccessMessage = "Try-on image generated"

// DefaultNoImageMessage is used when the model returns neither an image nor text.
const DefaultNoImageMessage = "The model did not return an image. Try a clearer photo of the person or the garment."

// TryOnResult is the normalized outcome of a try-on attempt.
// ImagePayload is set only when Status is TryOnSuccess.
type TryOnResult struct {
	Status       TryOnStatus `json:"status"`
	ImagePayload string      `json:"imagePayload,omitempty"`
	MimeType     string      `json:"mimeType,omitempty"`
	Message      string      `json:"message"`
}

// Response converts a result into the wire body sent to clients.
func (r TryOnResult) Response() TryOnResponse {
	if r.Status == TryOnSuccess {
		return TryOnResponse{
			Success:  true,
			Base64:   r.ImagePayload,
			MimeType: r.MimeType,
			Analysis: r.Message,
		}
	}
	return TryOnResponse{Success: false, Message: r.Message}
}

// Result converts a wire body back into a result.
func (r TryOnResponse) Result() TryOnResult {
	if r.Success && r.Base64 != "" {
		msg := r.Analysis
		if msg == "" {
			msg = DefaultSuccessMessage
		}
		return TryOnResult{Status: TryOnSuccess, ImagePayload: r.Base64, MimeType: r.MimeType, Message: msg}
	}
	msg := r.Message
	if msg == "" {
		msg = DefaultNoImageMessage
	}
	return TryOnResult{Status: TryOnNoImage, Message: msg}
}
