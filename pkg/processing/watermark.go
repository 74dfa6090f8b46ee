package processing

import (
	"context"
	"errors"
	"image"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Fetcher downloads and decodes a remote image
type Fetcher interface {
	LoadImageFromURL(ctx context.Context, url string) (image.Image, error)
}

type fetchResult struct {
	img image.Image
	err error
}

// WatermarkCache fetches each watermark URL at most once per run.
// Concurrent callers for the same URL share one download, and failures are
// remembered so a broken URL is not retried for every mockup. Timeouts are
// not remembered.
type WatermarkCache struct {
	fetcher Fetcher
	group   singleflight.Group

	mu      sync.RWMutex
	results map[string]fetchResult
}

// NewWatermarkCache wraps fetcher with a per-run cache
func NewWatermarkCache(fetcher Fetcher) *WatermarkCache {
	return &WatermarkCache{
		fetcher: fetcher,
		results: make(map[string]fetchResult),
	}
}

// Watermark returns the decoded watermark image for url
func (c *WatermarkCache) Watermark(ctx context.Context, url string) (image.Image, error) {
	c.mu.RLock()
	res, ok := c.results[url]
	c.mu.RUnlock()
	if ok {
		return res.img, res.err
	}

	// The download is shared, so it must outlive the caller that started it.
	// Each caller still stops waiting when its own context ends.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(url, func() (any, error) {
		img, err := c.fetcher.LoadImageFromURL(fetchCtx, url)
		res := fetchResult{img: img, err: err}
		// a timed out download says nothing lasting about the URL
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, nil
		}
		c.mu.Lock()
		c.results[url] = res
		c.mu.Unlock()
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		res = r.Val.(fetchResult)
		return res.img, res.err
	}
}
