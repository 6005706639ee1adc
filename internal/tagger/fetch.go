package tagger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrDownload = errors.New("image download failed")

const (
	DefaultDownloadTimeout       = 15 * time.Second
	maxImageBytes          int64 = 32 << 20
)

// Fetcher downloads source images with a bounded time and size.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxImageBytes,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrDownload, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrDownload, f.maxBytes)
	}
	return data, nil
}
