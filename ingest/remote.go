package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxPageBytes bounds how much of a product page is parsed.
const maxPageBytes = 4 << 20

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// AcceptRemoteURL downloads rawURL and accepts it like a picked file.
func (in *Ingestor) AcceptRemoteURL(ctx context.Context, rawURL string) (*Image, error) {
	u, err := parseHTTPURL(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Reason: "invalid url", Err: err}
	}

	resp, err := in.get(ctx, u.String())
	if err != nil {
		return nil, &FetchError{URL: rawURL, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, Status: resp.StatusCode, Reason: "bad status"}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Reason: "read failed", Err: err}
	}

	contentType := imageContentType(resp.Header.Get("Content-Type"), data)
	if contentType == "" {
		return nil, &FetchError{URL: rawURL, Reason: "not an image"}
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = "remote-image"
	}
	return in.AcceptFile(File{Name: name, ContentType: contentType, Data: data})
}

// AcceptProductPage accepts the main product image of a shop page. Short links are
// followed; when the link points straight at an image it is used as is.
func (in *Ingestor) AcceptProductPage(ctx context.Context, pageURL string) (*Image, error) {
	u, err := parseHTTPURL(pageURL)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Reason: "invalid url", Err: err}
	}

	resp, err := in.get(ctx, u.String())
	if err != nil {
		return nil, &FetchError{URL: pageURL, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: pageURL, Status: resp.StatusCode, Reason: "bad status"}
	}

	// Redirects are followed by the client; relative image links resolve against the final URL.
	finalURL := u
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	if mediaType(resp.Header.Get("Content-Type")) != "text/html" {
		return in.AcceptRemoteURL(ctx, finalURL.String())
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, &FetchError{URL: pageURL, Reason: "unreadable page", Err: err}
	}

	imageURL, ok := productImageURL(doc, finalURL)
	var renderErr error
	if !ok {
		imageURL, ok, renderErr = in.renderedImageURL(ctx, finalURL)
	}
	if !ok {
		return nil, &FetchError{URL: pageURL, Reason: "no product image found", Err: renderErr}
	}
	return in.AcceptRemoteURL(ctx, imageURL)
}

// renderedImageURL retries the product image lookup on browser-rendered HTML. The error is
// the last renderer failure, if any.
func (in *Ingestor) renderedImageURL(ctx context.Context, pageURL *url.URL) (string, bool, error) {
	var lastErr error
	for _, r := range in.renderers {
		html, err := r.Render(ctx, pageURL.String())
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", r.Name(), err)
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", r.Name(), err)
			continue
		}
		if imageURL, ok := productImageURL(doc, pageURL); ok {
			return imageURL, true, nil
		}
	}
	return "", false, lastErr
}

var productImageSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="og:image:secure_url"]`, "content"},
	{`meta[property="og:image"]`, "content"},
	{`meta[name="twitter:image"]`, "content"},
	{`link[rel="image_src"]`, "href"},
}

func productImageURL(doc *goquery.Document, base *url.URL) (string, bool) {
	for _, s := range productImageSelectors {
		val, ok := doc.Find(s.selector).First().Attr(s.attr)
		val = strings.TrimSpace(val)
		if !ok || val == "" {
			continue
		}
		ref, err := url.Parse(val)
		if err != nil {
			continue
		}
		return base.ResolveReference(ref).String(), true
	}
	return "", false
}

func (in *Ingestor) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*,text/html;q=0.9,*/*;q=0.8")
	return in.client.Do(req)
}

func parseHTTPURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("only http and https urls are supported")
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}

func mediaType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

// imageContentType trusts a declared image type and otherwise sniffs the bytes. It returns
// "" when the content is not an image.
func imageContentType(header string, data []byte) string {
	if mt := mediaType(header); strings.HasPrefix(mt, "image/") {
		return mt
	}
	if sniffed := mimetype.Detect(data).String(); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return ""
}
