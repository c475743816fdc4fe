package fetch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jmllr/alertchain/internal/logger"
	"github.com/jmllr/alertchain/internal/models"
)

// Fetcher combines the HTTP client with the two-tier cache and fans a plan's
// unique requests out over a bounded worker group.
type Fetcher struct {
	client        *Client
	cache         *Cache
	maxConcurrent int
}

func NewFetcher(client *Client, cache *Cache, maxConcurrent int) *Fetcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Fetcher{client: client, cache: cache, maxConcurrent: maxConcurrent}
}

// Execute fetches every unique key of the plan and returns the full result
// map. Individual failures land in the map as failed results; the only error
// returned is context cancellation.
func (f *Fetcher) Execute(ctx context.Context, plan *Plan) (map[RequestKey]models.FetchResult, error) {
	f.cache.BeginRun()

	results := make(map[RequestKey]models.FetchResult, len(plan.Keys))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxConcurrent)

	for _, key := range plan.Keys {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, hit := f.cache.Get(key)
			if !hit {
				res = f.client.Fetch(gctx, key)
				f.cache.Put(key, res)
			}
			if !res.OK {
				logger.Debug("fetch failed: key=%s err=%s", key, res.Error)
			}
			mu.Lock()
			results[key] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
