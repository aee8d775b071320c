// Package bucket discovers which numbered image shard hosts a product's
// photos. The catalog never says, so the resolver tries, in order: its own
// cache, a table of confirmed assignments, probes starting at a heuristic
// guess, and finally a deterministic hash. It never fails.
package bucket

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"catalog-search/internal/catalog/models"
	"catalog-search/internal/common/logger"
	"catalog-search/internal/common/metrics"
)

// Prober checks whether a URL exists. Any failure must read as false.
type Prober interface {
	Exists(ctx context.Context, rawURL string, timeout time.Duration) bool
}

// Options configures a Resolver.
type Options struct {
	// ImageHost carries a single %02d verb for the bucket number.
	ImageHost        string
	Count            int
	ProbeConcurrency int
	ProbeTimeout     time.Duration
	// StaticMap entries are merged over the built-in confirmed assignments.
	StaticMap map[int64]int
}

// confirmedBuckets holds assignments verified against the CDN.
var confirmedBuckets = map[int64]int{
	14952416:  2,
	38435470:  3,
	139760612: 10,
}

const resolveAllConcurrency = 8

type probeState uint8

const (
	probePending probeState = iota
	probeMissing
	probeFound
)

// Resolver assigns products to image buckets. Safe for concurrent use.
type Resolver struct {
	prober Prober
	opts   Options
	static map[int64]int
	log    logger.Logger

	assigned *gocache.Cache
	group    singleflight.Group
}

func NewResolver(prober Prober, opts Options, log logger.Logger) *Resolver {
	if opts.Count <= 0 {
		opts.Count = 20
	}
	if opts.ProbeConcurrency <= 0 {
		opts.ProbeConcurrency = 1
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = time.Second
	}

	static := make(map[int64]int, len(confirmedBuckets)+len(opts.StaticMap))
	for id, b := range confirmedBuckets {
		static[id] = b
	}
	for id, b := range opts.StaticMap {
		static[id] = b
	}

	return &Resolver{
		prober:   prober,
		opts:     opts,
		static:   static,
		log:      log.Component("bucket_resolver"),
		assigned: gocache.New(gocache.NoExpiration, 0),
	}
}

// Resolve returns the bucket for id. Concurrent calls for the same id share
// one resolution, which runs detached from any caller and is always cached.
// A caller whose ctx ends first gets the hash fallback, uncached, while the
// shared resolution finishes for everyone else.
func (r *Resolver) Resolve(ctx context.Context, id int64) models.BucketAssignment {
	if b, ok := r.cached(id); ok {
		return r.record(models.BucketAssignment{ProductID: id, Bucket: b, Source: models.BucketSourceCache})
	}

	ch := r.group.DoChan(strconv.FormatInt(id, 10), func() (interface{}, error) {
		if b, ok := r.cached(id); ok {
			return models.BucketAssignment{ProductID: id, Bucket: b, Source: models.BucketSourceCache}, nil
		}
		a := r.resolve(context.WithoutCancel(ctx), id)
		r.store(id, a.Bucket)
		return a, nil
	})

	select {
	case res := <-ch:
		return r.record(res.Val.(models.BucketAssignment))
	case <-ctx.Done():
		return r.record(models.BucketAssignment{
			ProductID: id,
			Bucket:    HashFallback(id, r.opts.Count),
			Source:    models.BucketSourceHashFallback,
		})
	}
}

// ResolveAll resolves every distinct id concurrently.
func (r *Resolver) ResolveAll(ctx context.Context, ids []int64) map[int64]models.BucketAssignment {
	out := make(map[int64]models.BucketAssignment, len(ids))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(resolveAllConcurrency)
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		id := id
		g.Go(func() error {
			a := r.Resolve(ctx, id)
			mu.Lock()
			out[id] = a
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Resolver) resolve(ctx context.Context, id int64) models.BucketAssignment {
	if b, ok := r.static[id]; ok {
		return models.BucketAssignment{ProductID: id, Bucket: b, Source: models.BucketSourceStaticMap}
	}

	candidates := Candidates(Heuristic(id, r.opts.Count), r.opts.Count)
	if b, ok := r.probe(ctx, id, candidates); ok {
		return models.BucketAssignment{ProductID: id, Bucket: b, Source: models.BucketSourceProbe}
	}

	b := HashFallback(id, r.opts.Count)
	r.log.Info("No bucket answered the probe, using hash fallback", map[string]interface{}{
		"product_id": id,
		"bucket":     b,
	})
	return models.BucketAssignment{ProductID: id, Bucket: b, Source: models.BucketSourceHashFallback}
}

// probe checks candidates in priority order and returns the first that
// exists. With concurrency above one, probes are dispatched in candidate
// order and the earliest existing candidate still wins; outstanding probes
// are cancelled once no earlier candidate can change the answer.
func (r *Resolver) probe(ctx context.Context, id int64, candidates []int) (int, bool) {
	if r.opts.ProbeConcurrency <= 1 {
		for _, b := range candidates {
			if ctx.Err() != nil {
				return 0, false
			}
			if r.prober.Exists(ctx, ImageURL(r.opts.ImageHost, b, id, 1), r.opts.ProbeTimeout) {
				return b, true
			}
		}
		return 0, false
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	states := make([]probeState, len(candidates))

	g := new(errgroup.Group)
	g.SetLimit(r.opts.ProbeConcurrency)
	for i, b := range candidates {
		mu.Lock()
		_, decided := winner(states)
		mu.Unlock()
		if decided || ctx.Err() != nil {
			break
		}

		i, b := i, b
		g.Go(func() error {
			ok := r.prober.Exists(ctx, ImageURL(r.opts.ImageHost, b, id, 1), r.opts.ProbeTimeout)

			mu.Lock()
			defer mu.Unlock()
			if ok {
				states[i] = probeFound
			} else {
				states[i] = probeMissing
			}
			if _, decided := winner(states); decided {
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	if i, ok := winner(states); ok {
		return candidates[i], true
	}
	return 0, false
}

// winner returns the first found candidate once every earlier one is known
// to be missing.
func winner(states []probeState) (int, bool) {
	for i, s := range states {
		switch s {
		case probeFound:
			return i, true
		case probePending:
			return 0, false
		}
	}
	return 0, false
}

func (r *Resolver) cached(id int64) (int, bool) {
	v, ok := r.assigned.Get(strconv.FormatInt(id, 10))
	if !ok {
		return 0, false
	}
	b, ok := v.(int)
	return b, ok
}

func (r *Resolver) store(id int64, b int) {
	r.assigned.Set(strconv.FormatInt(id, 10), b, gocache.NoExpiration)
}

func (r *Resolver) record(a models.BucketAssignment) models.BucketAssignment {
	metrics.BucketResolutions.WithLabelValues(string(a.Source)).Inc()
	return a
}

// Len is the number of cached assignments.
func (r *Resolver) Len() int {
	return r.assigned.ItemCount()
}
