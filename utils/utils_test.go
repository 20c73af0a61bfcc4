package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/fitcheckr/fitcheckr/models"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k])))})
	}
	return out, nil
}

func TestS3ObjectStore(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := newS3ObjectStore(fake, "eu-west-1", "bucket")

	obj, err := store.Put(ctx, "subs/1.json", []byte(`{"emails":[]}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3.eu-west-1.amazonaws.com/subs/1.json", obj.URL)
	assert.Equal(t, "application/json", fake.types["subs/1.json"])

	_, err = store.Put(ctx, "other/2.json", []byte(`{}`), "application/json")
	require.NoError(t, err)

	list, err := store.List(ctx, "subs/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "subs/1.json", list[0].Key)
	assert.Equal(t, int64(13), list[0].Size)

	data, err := store.Get(ctx, obj.URL)
	require.NoError(t, err)
	assert.Equal(t, `{"emails":[]}`, string(data))

	require.NoError(t, store.Delete(ctx, obj.URL))
	_, err = store.Get(ctx, "subs/1.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestAdminToken(t *testing.T) {
	token, err := GenerateAdminToken("secret", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, ValidateAdminToken("secret", token))
	assert.Error(t, ValidateAdminToken("other", token))
	assert.Error(t, ValidateAdminToken("", token))

	expired, err := GenerateAdminToken("secret", -time.Minute)
	require.NoError(t, err)
	assert.Error(t, ValidateAdminToken("secret", expired))

	_, err = GenerateAdminToken("", time.Minute)
	assert.Error(t, err)
}

func TestRespondErrorDetails(t *testing.T) {
	var logBuilder strings.Builder
	rec := httptest.NewRecorder()

	RespondErrorDetails(rec, &logBuilder, "Failed", "disk full", http.StatusInternalServerError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.ErrorResponse{Error: "Failed", Details: "disk full"}, body)
	assert.Equal(t, "Failed (disk full);\n", logBuilder.String())
}

func TestRespondJSONLogsEncodeFailure(t *testing.T) {
	var out bytes.Buffer
	prev := zlog.Logger
	zlog.Logger = zerolog.New(&out)
	t.Cleanup(func() { zlog.Logger = prev })

	rec := httptest.NewRecorder()
	RespondJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "failed to encode JSON response", entry["message"])
}

func TestFlushLogMessage(t *testing.T) {
	var out bytes.Buffer
	logger := newLogger(&out, "production")

	var b strings.Builder
	FlushLogMessage(logger, &b)
	assert.Zero(t, out.Len())

	AddToLogMessage(&b, "[Test API]")
	AddToLogMessage(&b, "done")
	FlushLogMessage(logger, &b)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "[Test API];\ndone;", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewLoggerLevels(t *testing.T) {
	var out bytes.Buffer
	prod := newLogger(&out, "production")
	prod.Debug().Msg("hidden")
	assert.Zero(t, out.Len())

	dev := newLogger(&out, "development")
	dev.Debug().Msg("shown")
	assert.Contains(t, out.String(), "shown")
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(2, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1000"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:1000"))
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimit(0, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientIPIgnoresForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("X-Real-IP", "203.0.113.8")
	assert.Equal(t, "192.0.2.10", clientIP(req))
}

func TestRateLimitRotatingForwardedFor(t *testing.T) {
	handler := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	accepted := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "198.51.100.4:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusNoContent {
			accepted++
		}
	}
	assert.Equal(t, 2, accepted)
}

func TestRateLimiterSweepsExpiredWindows(t *testing.T) {
	l := newRateLimiter(1, time.Minute)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		assert.True(t, l.allow(fmt.Sprintf("10.0.0.%d", i), start))
	}
	assert.False(t, l.allow("10.0.0.1", start.Add(time.Second)))
	assert.Equal(t, 100, l.size())

	later := start.Add(2 * time.Minute)
	assert.True(t, l.allow("10.0.0.1", later))
	assert.Equal(t, 1, l.size())
}

func TestRecoverMiddleware(t *testing.T) {
	var out bytes.Buffer
	handler := RecoverMiddleware(zerolog.New(&out))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
	assert.Contains(t, out.String(), "handler panicked")
}
