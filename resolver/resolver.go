// Package resolver turns recommendation candidates into playable tracks through
// a search backend, in fixed-size batches that run one after another.
package resolver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/dj-tender/media"
	"github.com/onnwee/dj-tender/telemetry"
)

const (
	// batchSize is the number of candidates resolved concurrently per group.
	batchSize = 3
	// shortFormMax is the longest duration treated as a short-form clip.
	shortFormMax = 60 * time.Second
	searchLimit  = 5
)

// Searcher is a free-text search backend (YouTube Data API or yt-dlp).
type Searcher interface {
	Search(ctx context.Context, q string, limit int) ([]media.Track, error)
}

type Options struct {
	CacheTTL time.Duration
}

type Resolver struct {
	search Searcher
	cache  *cache.Cache
	log    *slog.Logger

	// onBatch observes batch sizes; tests only.
	onBatch func(size int)
}

func New(search Searcher, opts Options) *Resolver {
	r := &Resolver{
		search: search,
		log:    slog.Default().With(slog.String("component", "resolver")),
	}
	if opts.CacheTTL > 0 {
		r.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return r
}

// ResolveOne searches for a single candidate and returns the first usable
// result. ok is false when nothing usable was found or the search failed.
func (r *Resolver) ResolveOne(ctx context.Context, c media.Candidate, requestedBy string) (media.Track, bool) {
	q := c.Query()
	if q == "" {
		return media.Track{}, false
	}
	key := strings.ToLower(q)
	if r.cache != nil {
		if v, found := r.cache.Get(key); found {
			t := v.(media.Track)
			t.RequestedBy = requestedBy
			return t, true
		}
	}

	results, err := r.search.Search(ctx, q, searchLimit)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("search failed", slog.String("component", "resolver"), slog.String("query", q), slog.Any("err", err))
		return media.Track{}, false
	}
	for _, t := range results {
		if !Usable(t) {
			continue
		}
		t.Origin = media.OriginRegular
		if r.cache != nil {
			r.cache.Set(key, t, cache.DefaultExpiration)
		}
		t.RequestedBy = requestedBy
		return t, true
	}
	return media.Track{}, false
}

// Usable rejects results without a locator and short-form clips.
func Usable(t media.Track) bool {
	if t.Locator == "" || t.Title == "" {
		return false
	}
	if t.Duration > 0 && t.Duration <= shortFormMax {
		return false
	}
	if strings.Contains(t.Locator, "/shorts/") || strings.Contains(strings.ToLower(t.Title), "#shorts") {
		return false
	}
	return true
}

// Resolve processes candidates in groups of three: batches run strictly in
// sequence, calls inside a batch run concurrently. Output keeps candidate order
// with unresolved entries dropped; an empty result means nothing resolved.
func (r *Resolver) Resolve(ctx context.Context, cands []media.Candidate, requestedBy string) []media.Track {
	ctx, span := telemetry.StartSpan(ctx, "resolver.resolve", attribute.Int("candidates", len(cands)))
	defer telemetry.EndSpan(span, nil)

	out := make([]media.Track, 0, len(cands))
	for start := 0; start < len(cands); start += batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+batchSize, len(cands))
		batch := cands[start:end]
		if r.onBatch != nil {
			r.onBatch(len(batch))
		}
		telemetry.IncResolveBatch()

		results := make([]*media.Track, len(batch))
		var g errgroup.Group
		for i, c := range batch {
			g.Go(func() error {
				if t, ok := r.ResolveOne(ctx, c, requestedBy); ok {
					results[i] = &t
				}
				return nil
			})
		}
		_ = g.Wait()

		for _, t := range results {
			if t != nil {
				out = append(out, *t)
			}
		}
	}
	telemetry.AddTracksResolved(len(out))
	r.log.Debug("resolution finished", slog.Int("candidates", len(cands)), slog.Int("resolved", len(out)))
	return out
}
