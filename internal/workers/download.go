package workers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

// ErrTooLarge is returned when a download exceeds the configured cap.
type ErrTooLarge struct {
	URL      string
	MaxBytes int64
}

func (e ErrTooLarge) Error() string {
	return fmt.Sprintf("download %s exceeds max size of %d bytes", e.URL, e.MaxBytes)
}

type Downloader struct {
	client   *http.Client
	maxBytes int64
	tempDir  string
}

func NewDownloader(client *http.Client, maxBytes int64) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &Downloader{client: client, maxBytes: maxBytes}
}

// Fetch stores the resource in a fresh temp file. The returned cleanup
// removes it and must be called on every path once the file is no longer
// needed.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, func(), error) {
	noop := func() {}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", noop, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", noop, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", noop, fmt.Errorf("download %s: %s", rawURL, resp.Status)
	}
	if resp.ContentLength > d.maxBytes {
		return "", noop, ErrTooLarge{URL: rawURL, MaxBytes: d.maxBytes}
	}

	file, err := os.CreateTemp(d.tempDir, "quiz-data-*"+extension(rawURL))
	if err != nil {
		return "", noop, err
	}
	cleanup := func() {
		_ = os.Remove(file.Name())
	}
	written, copyErr := io.Copy(file, io.LimitReader(resp.Body, d.maxBytes+1))
	closeErr := file.Close()
	if copyErr != nil {
		cleanup()
		return "", noop, copyErr
	}
	if closeErr != nil {
		cleanup()
		return "", noop, closeErr
	}
	if written > d.maxBytes {
		cleanup()
		return "", noop, ErrTooLarge{URL: rawURL, MaxBytes: d.maxBytes}
	}
	return file.Name(), cleanup, nil
}

// extension returns the lower-cased extension of the URL's path, including
// the dot, or "" when there is none.
func extension(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(parsed.Path))
}
