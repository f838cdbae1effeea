package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// downloadChunkSize is the fixed read size used while streaming remote files.
const downloadChunkSize = 1024

// WebhookDownloader streams remote resources into content files.
type WebhookDownloader struct {
	client   *http.Client
	maxBytes int64
}

// NewWebhookDownloader bounds every download by timeout and maxBytes (0 = unlimited).
func NewWebhookDownloader(timeout time.Duration, maxBytes int64) *WebhookDownloader {
	return &WebhookDownloader{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// ParseWebhookURL accepts absolute http and https URLs only.
func ParseWebhookURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}

// FileNameFromURL infers a file name from the last path segment of the URL.
func FileNameFromURL(raw string) (string, error) {
	u, err := ParseWebhookURL(raw)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return sanitizeFilename(name)
}

// Fetch downloads rawURL into w in fixed-size chunks. Non-2xx responses and
// bodies larger than the limit are errors; w may then hold partial data.
func (d *WebhookDownloader) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	u, err := ParseWebhookURL(rawURL)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("create download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %s returned %s", ErrWebhookStatus, u.Redacted(), resp.Status)
	}
	if d.maxBytes > 0 && resp.ContentLength > d.maxBytes {
		return 0, fmt.Errorf("%w: %d bytes announced", ErrTooLarge, resp.ContentLength)
	}

	buf := make([]byte, downloadChunkSize)
	var written int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			written += int64(n)
			if d.maxBytes > 0 && written > d.maxBytes {
				return written, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.maxBytes)
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("write download: %w", err)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("read download: %w", readErr)
		}
	}
}
