// Package relay forwards a person photo and a clothing photo to a generative image model
// and normalizes its reply into a models.TryOnResult.
package relay

import (
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/fitcheckr/fitcheckr/models"
	"github.com/gabriel-vasile/mimetype"
)

// PromptVersion identifies the bundled instruction text.
const PromptVersion = "tryon-v1"

//go:embed prompts/tryon_v1.txt
var tryOnInstructions string

// Instructions returns the fixed instruction text sent with every request.
func Instructions() string {
	return tryOnInstructions
}

// Relay is stateless; one Relay can serve concurrent requests.
type Relay struct {
	provider Provider
	model    string
}

// New returns a Relay that calls model on provider.
func New(provider Provider, model string) *Relay {
	return &Relay{provider: provider, model: model}
}

// Model reports the model identifier requests are sent to.
func (r *Relay) Model() string {
	return r.model
}

// TryOn composites the article onto the person. Both inputs are base64 payloads without a
// data-URI prefix. A reply without an image is not an error: it yields a result with
// status no-image-produced. Provider failures are returned as *ProviderError.
func (r *Relay) TryOn(ctx context.Context, userImage, articleImage string) (models.TryOnResult, error) {
	userPart, err := decodeImage(userImage)
	if err != nil {
		return models.TryOnResult{}, fmt.Errorf("user image: %w", err)
	}
	articlePart, err := decodeImage(articleImage)
	if err != nil {
		return models.TryOnResult{}, fmt.Errorf("article image: %w", err)
	}

	parts := []Part{userPart, articlePart, TextPart(Instructions())}
	replyParts, err := r.provider.Generate(ctx, r.model, parts)
	if err != nil {
		return models.TryOnResult{}, &ProviderError{Kind: Classify(err), Err: err}
	}

	rep := parseReply(replyParts)
	if rep.image == nil {
		msg := rep.text
		if msg == "" {
			msg = models.DefaultNoImageMessage
		}
		return models.TryOnResult{Status: models.TryOnNoImage, Message: msg}, nil
	}

	mimeType := rep.image.MIMEType
	if mimeType == "" {
		mimeType = mimetype.Detect(rep.image.Data).String()
	}
	msg := rep.text
	if msg == "" {
		msg = models.DefaultSuccessMessage
	}
	return models.TryOnResult{
		Status:       models.TryOnSuccess,
		ImagePayload: base64.StdEncoding.EncodeToString(rep.image.Data),
		MimeType:     mimeType,
		Message:      msg,
	}, nil
}

func decodeImage(payload string) (ImagePart, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return ImagePart{}, fmt.Errorf("%w: empty", ErrInvalidImage)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ImagePart{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	// Payloads are assumed PNG-compatible; sniffing only improves on that default.
	mimeType := "image/png"
	if detected := mimetype.Detect(data); strings.HasPrefix(detected.String(), "image/") {
		mimeType = detected.String()
	}
	return ImagePart{MIMEType: mimeType, Data: data}, nil
}
