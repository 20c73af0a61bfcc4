package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/fitcheckr/fitcheckr/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func fakePNG(size int, fill byte) []byte {
	data := make([]byte, size)
	copy(data, pngHeader)
	for i := len(pngHeader); i < size; i++ {
		data[i] = fill
	}
	return data
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

type recordingProvider struct {
	calls int
	model string
	parts []Part
	reply []Part
	err   error
}

func (p *recordingProvider) Generate(_ context.Context, model string, parts []Part) ([]Part, error) {
	p.calls++
	p.model = model
	p.parts = parts
	return p.reply, p.err
}

func TestTryOn_SendsTwoImagesThenInstructions(t *testing.T) {
	user := fakePNG(2048, 1)
	article := fakePNG(2048, 2)
	provider := &recordingProvider{reply: []Part{ImagePart{MIMEType: "image/png", Data: fakePNG(64, 3)}}}

	_, err := New(provider, "test-model").TryOn(context.Background(), b64(user), b64(article))
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, "test-model", provider.model)
	require.Len(t, provider.parts, 3)

	first, ok := provider.parts[0].(ImagePart)
	require.True(t, ok)
	assert.Equal(t, user, first.Data)
	assert.Equal(t, "image/png", first.MIMEType)

	second, ok := provider.parts[1].(ImagePart)
	require.True(t, ok)
	assert.Equal(t, article, second.Data)

	text, ok := provider.parts[2].(TextPart)
	require.True(t, ok)
	assert.Equal(t, Instructions(), string(text))
	assert.NotEmpty(t, Instructions())
}

func TestTryOn_FirstImageWins(t *testing.T) {
	first := fakePNG(2048, 7)
	second := fakePNG(2048, 8)
	provider := &recordingProvider{reply: []Part{
		TextPart("Here is the outfit."),
		ImagePart{MIMEType: "image/png", Data: first},
		TextPart("ignored trailing text"),
		ImagePart{MIMEType: "image/png", Data: second},
	}}

	result, err := New(provider, "m").TryOn(context.Background(), b64(fakePNG(32, 1)), b64(fakePNG(32, 2)))
	require.NoError(t, err)

	assert.Equal(t, models.TryOnSuccess, result.Status)
	assert.Equal(t, b64(first), result.ImagePayload)
	assert.Equal(t, "image/png", result.MimeType)
	assert.Equal(t, "Here is the outfit.", result.Message)
}

func TestTryOn_TextOnlyReplyIsNoImage(t *testing.T) {
	provider := &recordingProvider{reply: []Part{TextPart("I can't see a person."), TextPart("Please upload a full body photo.")}}

	result, err := New(provider, "m").TryOn(context.Background(), b64(fakePNG(32, 1)), b64(fakePNG(32, 2)))
	require.NoError(t, err)

	assert.Equal(t, models.TryOnNoImage, result.Status)
	assert.Empty(t, result.ImagePayload)
	assert.Equal(t, "I can't see a person.\nPlease upload a full body photo.", result.Message)
}

func TestTryOn_EmptyReplyUsesDefaultMessage(t *testing.T) {
	provider := &recordingProvider{}

	result, err := New(provider, "m").TryOn(context.Background(), b64(fakePNG(32, 1)), b64(fakePNG(32, 2)))
	require.NoError(t, err)

	assert.Equal(t, models.TryOnNoImage, result.Status)
	assert.Equal(t, models.DefaultNoImageMessage, result.Message)
}

func TestTryOn_ImageWithoutTextUsesDefaultMessage(t *testing.T) {
	provider := &recordingProvider{reply: []Part{ImagePart{Data: fakePNG(64, 9)}}}

	result, err := New(provider, "m").TryOn(context.Background(), b64(fakePNG(32, 1)), b64(fakePNG(32, 2)))
	require.NoError(t, err)

	assert.Equal(t, models.TryOnSuccess, result.Status)
	assert.Equal(t, models.DefaultSuccessMessage, result.Message)
	assert.Equal(t, "image/png", result.MimeType)
}

func TestTryOn_InvalidPayloadNeverCallsProvider(t *testing.T) {
	provider := &recordingProvider{}
	r := New(provider, "m")

	_, err := r.TryOn(context.Background(), "not base64!!", b64(fakePNG(32, 2)))
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = r.TryOn(context.Background(), b64(fakePNG(32, 1)), "")
	assert.ErrorIs(t, err, ErrInvalidImage)

	assert.Equal(t, 0, provider.calls)
}

func TestTryOn_ProviderFailureIsClassified(t *testing.T) {
	provider := &recordingProvider{err: errors.New("googleapi: Error 429: You exceeded your current quota")}

	_, err := New(provider, "m").TryOn(context.Background(), b64(fakePNG(32, 1)), b64(fakePNG(32, 2)))
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindQuota, perr.Kind)
	assert.Equal(t, http.StatusTooManyRequests, perr.Kind.HTTPStatus())
	assert.Contains(t, perr.Kind.UserMessage(), "quota exceeded")
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"api key message", errors.New("API key not valid. Please pass a valid API key."), KindAuth},
		{"quota message", errors.New("Resource has been exhausted (e.g. check quota)."), KindQuota},
		{"fetch failed", errors.New("fetch failed"), KindNetwork},
		{"dial", errors.New("dial tcp: lookup generativelanguage.googleapis.com: no such host"), KindNetwork},
		{"googleapi 401", &googleapi.Error{Code: http.StatusUnauthorized}, KindAuth},
		{"googleapi 429", fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusTooManyRequests}), KindQuota},
		{"googleapi 503", &googleapi.Error{Code: http.StatusServiceUnavailable}, KindNetwork},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "bad credentials"), KindAuth},
		{"grpc resource exhausted", status.Error(codes.ResourceExhausted, "slow down"), KindQuota},
		{"grpc unavailable", status.Error(codes.Unavailable, "try later"), KindNetwork},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindNetwork},
		{"net error", timeoutErr{}, KindNetwork},
		{"other", errors.New("model produced malformed output"), KindUnknown},
		{"status code in text", errors.New("googleapi: Error 403: caller does not have permission"), KindAuth},
		{"unexpected eof", errors.New("read body: unexpected EOF"), KindNetwork},
		{"byte count is not a status", errors.New("reply of 14010 bytes could not be parsed"), KindUnknown},
		{"word containing eof", errors.New("the candidate and all parts thereof were empty"), KindUnknown},
		{"size containing 429", errors.New("image 14290x200 rejected by model"), KindUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestParseReply_SkipsEmptyImages(t *testing.T) {
	rep := parseReply([]Part{
		ImagePart{MIMEType: "image/png"},
		TextPart("  "),
		TextPart("hello"),
		ImagePart{MIMEType: "image/jpeg", Data: []byte{1}},
	})

	require.NotNil(t, rep.image)
	assert.Equal(t, "image/jpeg", rep.image.MIMEType)
	assert.Equal(t, "hello", rep.text)
}
