// Package media fetches product photos on a best-effort basis.
package media

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"catalog-search/internal/catalog/models"
	"catalog-search/internal/common/logger"
)

// Fetcher downloads one binary resource.
type Fetcher interface {
	Download(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error)
}

type Image struct {
	URL         string
	Index       int
	ContentType string
	Data        []byte
}

type Downloader struct {
	fetcher Fetcher
	timeout time.Duration
	log     logger.Logger
}

func NewDownloader(fetcher Fetcher, timeout time.Duration, log logger.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Downloader{
		fetcher: fetcher,
		timeout: timeout,
		log:     log.Component("media_downloader"),
	}
}

// Download fetches up to maxImages of the product's images in slot order. Failed
// slots are skipped; a product whose bucket guess was wrong yields an empty
// list.
func (d *Downloader) Download(ctx context.Context, p models.Product, maxImages int) []Image {
	urls := p.ImageURLs
	if maxImages >= 0 && maxImages < len(urls) {
		urls = urls[:maxImages]
	}

	slots := make([]*Image, len(urls))
	g := new(errgroup.Group)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			data, err := d.fetcher.Download(ctx, u, d.timeout)
			if err != nil {
				d.log.Debug("Image download failed", map[string]interface{}{
					"product_id": p.ID,
					"url":        u,
					"error":      err,
				})
				return nil
			}
			slots[i] = &Image{URL: u, Index: i + 1, ContentType: http.DetectContentType(data), Data: data}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Image, 0, len(slots))
	for _, img := range slots {
		if img != nil {
			out = append(out, *img)
		}
	}
	return out
}
