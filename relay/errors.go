package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidImage is returned when an input payload is not valid base64 image data.
var ErrInvalidImage = errors.New("invalid image payload")

// ErrorKind classifies a failed provider call.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuth
	KindQuota
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// HTTPStatus is the status code the try-on endpoint answers with for this kind.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindAuth:
		return http.StatusUnauthorized
	case KindQuota:
		return http.StatusTooManyRequests
	case KindNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the short phrasing shown to end users.
func (k ErrorKind) UserMessage() string {
	switch k {
	case KindAuth:
		return "Authentication with the AI provider failed"
	case KindQuota:
		return "API quota exceeded. Please try again later."
	case KindNetwork:
		return "Network error while contacting the AI provider. Please try again."
	default:
		return "Failed to generate try-on image"
	}
}

// ProviderError wraps a failed provider call with its classification.
type ProviderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s error: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Markers match whole words so that e.g. a byte count of 14010 is not read as a 401.
var (
	authMarkers    = markerPattern("api key", "api_key", "unauthenticated", "unauthorized", "permission denied", "permission_denied", "401", "403")
	quotaMarkers   = markerPattern("quota", "429", "resource exhausted", "resource_exhausted", "rate limit")
	networkMarkers = markerPattern("network", "fetch failed", "connection refused", "connection reset", "no such host", "dial tcp", "timeout", "deadline exceeded", "unavailable", "eof")
)

func markerPattern(markers ...string) *regexp.Regexp {
	quoted := make([]string, len(markers))
	for i, m := range markers {
		quoted[i] = regexp.QuoteMeta(m)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Classify decides which ErrorKind a provider failure belongs to. Structured status codes
// win over message inspection.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if k, ok := kindForHTTP(gerr.Code); ok {
			return k
		}
	}

	var httpCoded interface{ HTTPCode() int }
	if errors.As(err, &httpCoded) {
		if k, ok := kindForHTTP(httpCoded.HTTPCode()); ok {
			return k
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown && st.Code() != codes.OK {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return KindAuth
		case codes.ResourceExhausted:
			return KindQuota
		case codes.Unavailable, codes.DeadlineExceeded:
			return KindNetwork
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case quotaMarkers.MatchString(msg):
		return KindQuota
	case authMarkers.MatchString(msg):
		return KindAuth
	case networkMarkers.MatchString(msg):
		return KindNetwork
	}
	return KindUnknown
}

func kindForHTTP(code int) (ErrorKind, bool) {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth, true
	case http.StatusTooManyRequests:
		return KindQuota, true
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindNetwork, true
	}
	return KindUnknown, false
}
