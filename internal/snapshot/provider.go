package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "alertdash/internal/errors"
	"alertdash/internal/models"
)

// Sources are the two read-only market data collaborators.
type Sources interface {
	Holdings(ctx context.Context) ([]models.HoldingRecord, error)
	Watchlist(ctx context.Context) ([]models.WatchlistRecord, error)
}

// Cache persists the last good snapshot so a later process can show it
// before its first fetch completes.
type Cache interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// fetch is one in-flight load shared by every caller that joins it.
type fetch struct {
	done chan struct{}
	snap *Snapshot
	err  error
}

// Provider owns the current snapshot. Loads are coalesced, and a response
// is applied only if no fresher response has been applied before it.
type Provider struct {
	sources Sources
	cache   Cache
	logger  zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	current   *Snapshot
	holdings  []models.HoldingRecord
	watchlist []models.WatchlistRecord
	loaded    bool
	inflight  *fetch
	nextSeq   uint64
	applied   uint64
}

// NewProvider creates a provider over the given sources.
func NewProvider(sources Sources, logger zerolog.Logger) *Provider {
	return &Provider{
		sources: sources,
		logger:  logger.With().Str("component", "snapshot").Logger(),
		now:     time.Now,
		current: Empty(),
	}
}

// SetCache attaches a snapshot cache.
func (p *Provider) SetCache(c Cache) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = c
}

// Current returns the last applied snapshot. It is never nil.
func (p *Provider) Current() *Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Loaded reports whether at least one fetch has been applied.
func (p *Provider) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Warm seeds the current snapshot from the cache when nothing has been
// fetched yet. A cached snapshot does not count as loaded.
func (p *Provider) Warm(ctx context.Context) error {
	p.mu.Lock()
	cache := p.cache
	skip := p.loaded || p.current.Len() > 0
	p.mu.Unlock()

	if cache == nil || skip {
		return nil
	}

	snap, err := cache.Load(ctx)
	if err != nil {
		return apperrors.Wrap(err, "warm snapshot from cache")
	}
	if snap == nil {
		return nil
	}
	if snap.Metrics == nil {
		snap.Metrics = make(map[string]models.MarketMetrics)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded && p.current.Len() == 0 {
		p.current = snap
		p.logger.Debug().
			Int("tickers", snap.Len()).
			Time("fetched_at", snap.FetchedAt).
			Msg("Snapshot warmed from cache")
	}
	return nil
}

// Load returns the current snapshot, fetching it first if needed.
//
// Without force, a caller joins a fetch already in flight, or gets the
// loaded snapshot back without a request. With force a new fetch always
// starts. On error the returned snapshot is the freshest one available,
// possibly stale.
func (p *Provider) Load(ctx context.Context, force bool) (*Snapshot, error) {
	p.mu.Lock()
	if !force {
		if f := p.inflight; f != nil {
			p.mu.Unlock()
			return p.wait(ctx, f)
		}
		if p.loaded {
			snap := p.current
			p.mu.Unlock()
			return snap, nil
		}
	}

	p.nextSeq++
	seq := p.nextSeq
	f := &fetch{done: make(chan struct{})}
	p.inflight = f
	p.mu.Unlock()

	p.run(ctx, seq, f)
	return f.snap, f.err
}

func (p *Provider) wait(ctx context.Context, f *fetch) (*Snapshot, error) {
	select {
	case <-f.done:
		return f.snap, f.err
	case <-ctx.Done():
		return p.Current(), ctx.Err()
	}
}

func (p *Provider) run(ctx context.Context, seq uint64, f *fetch) {
	start := p.now()

	var (
		wg           sync.WaitGroup
		holdings     []models.HoldingRecord
		watchlist    []models.WatchlistRecord
		holdingsErr  error
		watchlistErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		holdings, holdingsErr = p.sources.Holdings(ctx)
	}()
	go func() {
		defer wg.Done()
		watchlist, watchlistErr = p.sources.Watchlist(ctx)
	}()
	wg.Wait()

	var errs []error
	if holdingsErr != nil {
		errs = append(errs, apperrors.NewSourceError("holdings", holdingsErr))
	}
	if watchlistErr != nil {
		errs = append(errs, apperrors.NewSourceError("watchlist", watchlistErr))
	}
	err := apperrors.Join(errs...)

	p.mu.Lock()
	applied := false
	if seq > p.applied && (holdingsErr == nil || watchlistErr == nil) {
		if holdingsErr == nil {
			p.holdings = holdings
		}
		if watchlistErr == nil {
			p.watchlist = watchlist
		}
		snap := Build(p.holdings, p.watchlist)
		snap.Seq = seq
		snap.FetchedAt = p.now()
		p.current = snap
		p.applied = seq
		p.loaded = true
		applied = true
	} else if seq <= p.applied {
		p.logger.Debug().
			Uint64("seq", seq).
			Uint64("applied", p.applied).
			Msg("Discarding stale snapshot response")
	}
	f.snap = p.current
	f.err = err
	if p.inflight == f {
		p.inflight = nil
	}
	cache := p.cache
	p.mu.Unlock()
	close(f.done)

	var event *zerolog.Event
	if err != nil {
		event = p.logger.Warn().Err(err)
	} else {
		event = p.logger.Debug()
	}
	event.
		Uint64("seq", seq).
		Bool("applied", applied).
		Int("tickers", f.snap.Len()).
		Dur("duration", p.now().Sub(start)).
		Msg("Snapshot fetch finished")

	if applied && cache != nil {
		if cerr := cache.Save(ctx, f.snap); cerr != nil {
			p.logger.Warn().Err(cerr).Msg("Failed to cache snapshot")
		}
	}
}
