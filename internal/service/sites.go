package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/timmy/cloudnet/internal/domain"
	"golang.org/x/sync/errgroup"
)

// SiteFunc handles one site.
type SiteFunc func(ctx context.Context, site domain.Site) error

// ForEachSite calls fn for every site, at most workers at a time. A failing
// site does not stop the others; the errors of all failed sites are joined.
// Sites not yet started when ctx is cancelled are not run.
func ForEachSite(ctx context.Context, sites []domain.Site, workers int, fn SiteFunc) error {
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)

	var (
		mu   sync.Mutex
		errs []error
	)
	for _, site := range sites {
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				err = fn(ctx, site)
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("site %s: %w", site.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
