package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/curriculum-catalog-server/internal/domain"
)

// State is the lifecycle state of a Store.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Source records where the held catalog came from.
type Source string

const (
	SourceUpstream Source = "upstream"
	SourceCache    Source = "cache"
)

const loadKey = "catalog"

// Fetcher downloads the raw catalog payload.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]byte, error) { return f(ctx) }

// PayloadCache persists the last good raw payload so a restart can serve a
// catalog while the upstream is down.
type PayloadCache interface {
	GetPayload(ctx context.Context) ([]byte, time.Time, bool, error)
	SetPayload(ctx context.Context, payload []byte) error
}

// StateSnapshot is the externally visible state of a Store.
type StateSnapshot struct {
	State            State        `json:"state"`
	Error            string       `json:"error,omitempty"`
	LastRefreshError string       `json:"last_refresh_error,omitempty"`
	LoadedAt         time.Time    `json:"loaded_at,omitempty"`
	Generation       uint64       `json:"generation"`
	Source           Source       `json:"source,omitempty"`
	Shape            PayloadShape `json:"shape,omitempty"`
	Strategy         string       `json:"strategy,omitempty"`
	Stats            Stats        `json:"stats"`
	Skipped          int          `json:"skipped"`
}

// Options configures a Store.
type Options struct {
	Policy          string
	AreaHints       map[domain.EducationLevel][]domain.SubjectArea
	LoadTimeout     time.Duration
	RefreshInterval time.Duration
	QueryCacheSize  int
	Cache           PayloadCache
	Observer        Observer
}

// snapshot is replaced wholesale on every transition.
type snapshot struct {
	state          State
	err            error
	lastRefreshErr error
	catalog        *Catalog
	report         *Report
	loadedAt       time.Time
	generation     uint64
	source         Source
}

// Store owns the catalog lifecycle: it fetches, normalizes and holds one
// immutable Catalog, and answers queries against whatever snapshot is current.
// Queries never block; concurrent loads coalesce into one fetch.
type Store struct {
	fetcher    Fetcher
	normalizer *Normalizer
	cache      PayloadCache
	logger     *logrus.Logger

	loadTimeout     time.Duration
	refreshInterval time.Duration

	group  singleflight.Group
	issued atomic.Uint64
	snap   atomic.Pointer[snapshot]

	queries *lru.Cache[string, []string]

	mu      sync.Mutex
	subs    map[int]chan StateSnapshot
	nextSub int
}

// NewStore creates a Store in the Idle state
func NewStore(fetcher Fetcher, logger *logrus.Logger, opts Options) (*Store, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("catalog fetcher is required")
	}
	if opts.Policy == "" {
		opts.Policy = PolicyOffset
	}
	if !ValidPolicy(opts.Policy) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Policy)
	}
	if opts.LoadTimeout == 0 {
		opts.LoadTimeout = 60 * time.Second
	}
	if opts.QueryCacheSize == 0 {
		opts.QueryCacheSize = 512
	}
	if opts.Observer == nil {
		opts.Observer = NewLogObserver(logger)
	}

	queries, err := lru.New[string, []string](opts.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	s := &Store{
		fetcher: fetcher,
		normalizer: &Normalizer{
			Policy:    opts.Policy,
			AreaHints: opts.AreaHints,
			Observer:  opts.Observer,
		},
		cache:           opts.Cache,
		logger:          logger,
		loadTimeout:     opts.LoadTimeout,
		refreshInterval: opts.RefreshInterval,
		queries:         queries,
		subs:            make(map[int]chan StateSnapshot),
	}
	s.snap.Store(&snapshot{state: StateIdle})
	return s, nil
}

// Load starts a load, or joins the one in flight, and waits for it. It is a
// no-op once a catalog is held; use Reload to refetch.
func (s *Store) Load(ctx context.Context) error {
	if s.current().catalog != nil {
		return nil
	}
	return s.wait(ctx, s.group.DoChan(loadKey, s.attempt))
}

// Reload starts a new load that supersedes any load in flight, and waits for
// it. A failed reload keeps a previously held catalog.
func (s *Store) Reload(ctx context.Context) error {
	s.group.Forget(loadKey)
	return s.wait(ctx, s.group.DoChan(loadKey, s.attempt))
}

// Trigger starts a load in the background if the store is Idle.
func (s *Store) Trigger() {
	if s.current().state == StateIdle {
		s.group.DoChan(loadKey, s.attempt)
	}
}

// Run refreshes the catalog every RefreshInterval until ctx is done. It
// returns immediately when no interval is configured.
func (s *Store) Run(ctx context.Context) {
	if s.refreshInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				s.logger.WithError(err).Warn("Scheduled catalog refresh failed")
			}
		}
	}
}

// wait returns the outcome of the attempt on ch. When that attempt failed
// after a newer one was issued, the newer attempt's outcome is returned.
func (s *Store) wait(ctx context.Context, ch <-chan singleflight.Result) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return nil
		}
		gen, _ := res.Val.(uint64)
		if snap := s.current(); snap.generation > gen {
			if snap.catalog != nil {
				return nil
			}
			return snap.err
		}
		if gen != 0 && gen != s.issued.Load() {
			return s.wait(ctx, s.group.DoChan(loadKey, s.attempt))
		}
		return res.Err
	}
}

// attempt runs one fetch-and-normalize pass. Its generation is fixed when it
// starts; its outcome is only committed if no newer attempt has been issued.
func (s *Store) attempt() (any, error) {
	gen := s.issued.Add(1)
	s.markLoading(gen)

	ctx, cancel := context.WithTimeout(context.Background(), s.loadTimeout)
	defer cancel()

	start := time.Now()
	logger := s.logger.WithField("generation", gen)

	payload, err := s.fetcher.Fetch(ctx)
	var (
		cat    *Catalog
		report *Report
	)
	if err == nil {
		cat, report, err = s.normalizer.Normalize(payload)
	}
	if err == nil {
		s.storePayload(ctx, payload)
		s.commit(gen, &snapshot{
			state:    StateReady,
			catalog:  cat,
			report:   report,
			loadedAt: time.Now(),
			source:   SourceUpstream,
		})
		logger.WithFields(logrus.Fields{
			"duration_ms": time.Since(start).Milliseconds(),
			"grade_keys":  report.GradeKeys,
			"contents":    report.Contents,
		}).Info("Catalog loaded")
		return nil, nil
	}

	logger.WithError(err).Warn("Catalog load failed")
	s.fail(gen, err)
	return gen, err
}

// fail commits a failed attempt. A held catalog stays Ready; otherwise the
// payload cache is tried before giving up.
func (s *Store) fail(gen uint64, loadErr error) {
	if prev := s.current(); prev.catalog != nil {
		next := *prev
		next.lastRefreshErr = loadErr
		s.commit(gen, &next)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cat, report, cachedAt, ok := s.fromCache(ctx); ok {
		s.logger.WithFields(logrus.Fields{
			"generation": gen,
			"cached_at":  cachedAt,
		}).Warn("Serving catalog from payload cache")
		s.commit(gen, &snapshot{
			state:          StateReady,
			catalog:        cat,
			report:         report,
			loadedAt:       cachedAt,
			source:         SourceCache,
			lastRefreshErr: loadErr,
		})
		return
	}

	s.commit(gen, &snapshot{state: StateFailed, err: loadErr})
}

func (s *Store) fromCache(ctx context.Context) (*Catalog, *Report, time.Time, bool) {
	if s.cache == nil {
		return nil, nil, time.Time{}, false
	}
	payload, cachedAt, ok, err := s.cache.GetPayload(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read cached catalog payload")
		return nil, nil, time.Time{}, false
	}
	if !ok {
		return nil, nil, time.Time{}, false
	}
	cat, report, err := s.normalizer.Normalize(payload)
	if err != nil {
		s.logger.WithError(err).Warn("Cached catalog payload is unusable")
		return nil, nil, time.Time{}, false
	}
	return cat, report, cachedAt, true
}

func (s *Store) storePayload(ctx context.Context, payload []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetPayload(ctx, payload); err != nil {
		s.logger.WithError(err).Warn("Failed to cache catalog payload")
	}
}

// markLoading moves Idle or Failed to Loading. A held catalog keeps serving.
func (s *Store) markLoading(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snap.Load()
	if prev.catalog != nil || gen != s.issued.Load() {
		return
	}
	s.swap(&snapshot{state: StateLoading, generation: prev.generation})
}

func (s *Store) commit(gen uint64, next *snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.issued.Load() {
		s.logger.WithFields(logrus.Fields{
			"generation": gen,
			"latest":     s.issued.Load(),
		}).Debug("Discarding superseded catalog load")
		return
	}
	next.generation = gen
	s.swap(next)
}

// swap must be called with mu held.
func (s *Store) swap(next *snapshot) {
	s.snap.Store(next)
	s.queries.Purge()
	view := next.view()
	for _, ch := range s.subs {
		publish(ch, view)
	}
}

// publish delivers the newest snapshot, replacing one the subscriber has not
// read yet.
func publish(ch chan StateSnapshot, view StateSnapshot) {
	select {
	case ch <- view:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- view:
	default:
	}
}

func (s *Store) current() *snapshot {
	return s.snap.Load()
}

// State returns the current state snapshot.
func (s *Store) State() StateSnapshot {
	return s.current().view()
}

// Catalog returns the held catalog, or ErrNotReady.
func (s *Store) Catalog() (*Catalog, error) {
	snap := s.current()
	if snap.catalog == nil {
		return nil, ErrNotReady
	}
	return snap.catalog, nil
}

// Subscribe returns a channel that receives every state change, and a
// function that ends the subscription. Slow readers only see the latest state.
func (s *Store) Subscribe() (<-chan StateSnapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan StateSnapshot, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// GetContentsForAreas returns the contents of each area for a grade, tagged
// with their area. It returns an empty slice until a catalog is held and
// starts a background load when the store is Idle.
func (s *Store) GetContentsForAreas(areas []domain.SubjectArea, level domain.EducationLevel, grade int) []domain.ContentSelection {
	snap := s.current()
	if snap.catalog == nil {
		s.Trigger()
		return []domain.ContentSelection{}
	}
	return snap.catalog.ContentsForAreas(areas, level, grade)
}

// GetDescriptorsForContents returns the sorted, deduplicated descriptors of
// the selected contents. Lookups are scoped to each selection's area.
func (s *Store) GetDescriptorsForContents(selections []domain.ContentSelection, level domain.EducationLevel, grade int) []string {
	snap := s.current()
	if snap.catalog == nil {
		s.Trigger()
		return []string{}
	}

	key := queryKey(snap.generation, selections, level, grade)
	if cached, ok := s.queries.Get(key); ok {
		return append([]string(nil), cached...)
	}
	result := snap.catalog.DescriptorsForContents(selections, level, grade)
	s.queries.Add(key, result)
	return append([]string(nil), result...)
}

// SubjectAreas returns the areas present for a grade, sorted.
func (s *Store) SubjectAreas(level domain.EducationLevel, grade int) []domain.SubjectArea {
	snap := s.current()
	if snap.catalog == nil {
		s.Trigger()
		return []domain.SubjectArea{}
	}
	return snap.catalog.SubjectAreas(level, grade)
}

func queryKey(gen uint64, selections []domain.ContentSelection, level domain.EducationLevel, grade int) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(gen, 10))
	b.WriteByte('|')
	b.WriteString(string(level))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(grade))
	for _, sel := range selections {
		b.WriteByte('\x1f')
		b.WriteString(string(domain.NormalizeSubjectArea(string(sel.Area))))
		b.WriteByte('\x1e')
		b.WriteString(sel.Content)
	}
	return b.String()
}

func (snap *snapshot) view() StateSnapshot {
	v := StateSnapshot{
		State:      snap.state,
		LoadedAt:   snap.loadedAt,
		Generation: snap.generation,
		Source:     snap.source,
	}
	if snap.err != nil {
		v.Error = snap.err.Error()
	}
	if snap.lastRefreshErr != nil {
		v.LastRefreshError = snap.lastRefreshErr.Error()
	}
	if snap.catalog != nil {
		v.Shape = snap.catalog.Shape()
		v.Strategy = snap.catalog.Strategy().Name()
		v.Stats = snap.catalog.Stats()
	}
	if snap.report != nil {
		v.Skipped = len(snap.report.Skips)
	}
	return v
}
