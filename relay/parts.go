package relay

import (
	"context"
	"strings"
)

// Part is one unit of a provider request or reply: either TextPart or ImagePart.
type Part interface {
	isPart()
}

// TextPart carries free text.
type TextPart string

// ImagePart carries inline image bytes.
type ImagePart struct {
	MIMEType string
	Data     []byte
}

func (TextPart) isPart()  {}
func (ImagePart) isPart() {}

// Provider is an external generative model that accepts an ordered list of parts and
// replies with an ordered list of parts.
type Provider interface {
	Generate(ctx context.Context, model string, parts []Part) ([]Part, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, model string, parts []Part) ([]Part, error)

func (f ProviderFunc) Generate(ctx context.Context, model string, parts []Part) ([]Part, error) {
	return f(ctx, model, parts)
}

// reply is the normalized view of a provider reply.
type reply struct {
	text  string
	image *ImagePart
}

// parseReply walks the parts once, collecting text until the first image.
// Parts after the first image are not inspected.
func parseReply(parts []Part) reply {
	var texts []string
	var out reply
	for _, part := range parts {
		switch p := part.(type) {
		case TextPart:
			if s := strings.TrimSpace(string(p)); s != "" {
				texts = append(texts, s)
			}
		case ImagePart:
			if len(p.Data) == 0 {
				continue
			}
			img := p
			out.image = &img
		}
		if out.image != nil {
			break
		}
	}
	out.text = strings.Join(texts, "\n")
	return out
}
