// Package scan is the service context shared by every request: it owns the
// gallery, its synchronizer and derived cache, the match provider, the decision
// policy and the OSINT aggregator, and serializes every gallery mutation.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kozaktomas/neural-scan/internal/audit"
	"github.com/kozaktomas/neural-scan/internal/facecache"
	"github.com/kozaktomas/neural-scan/internal/gallery"
	"github.com/kozaktomas/neural-scan/internal/identity"
	"github.com/kozaktomas/neural-scan/internal/imageutil"
	"github.com/kozaktomas/neural-scan/internal/matcher"
	"github.com/kozaktomas/neural-scan/internal/osint"
)

// LockFile is the advisory lock taken in the gallery directory while the
// gallery is reconciled or mutated.
const LockFile = ".gallery.lock"

const lockRetryDelay = 50 * time.Millisecond

var (
	// ErrInvalidProbe is returned for probe images that cannot be decoded.
	ErrInvalidProbe = errors.New("invalid probe image")
	// ErrInvalidUpload is returned for gallery uploads that cannot be decoded.
	ErrInvalidUpload = errors.New("invalid upload")
	// ErrTimeout is returned when the request context ends before the work is done.
	ErrTimeout = errors.New("request timed out")
	// ErrSearchDisabled is returned by Investigate when no search provider is configured.
	ErrSearchDisabled = errors.New("osint search is not configured")
)

// Preparer is implemented by providers that can build their index ahead of the first probe.
type Preparer interface {
	Prepare(ctx context.Context, store *gallery.LocalStore) error
}

// Options are the collaborators of a Service. Store, Sync and Matcher are required.
type Options struct {
	Store    *gallery.LocalStore
	Sync     *gallery.Synchronizer
	Cache    *facecache.Cache
	Matcher  matcher.Provider
	Policy   identity.Policy
	OSINT    *osint.Aggregator
	Recorder audit.Recorder
	Logger   *slog.Logger
}

// SyncStatus is the outcome of the most recent reconciliation.
type SyncStatus struct {
	At     time.Time          `json:"at"`
	Result gallery.SyncResult `json:"result"`
	Error  string             `json:"error,omitempty"`
}

// Status summarizes the service state.
type Status struct {
	GalleryDir    string      `json:"gallery_dir"`
	Remote        bool        `json:"remote"`
	Entries       int         `json:"entries"`
	Fingerprint   string      `json:"fingerprint"`
	CacheFresh    bool        `json:"cache_fresh"`
	CachedFaces   int         `json:"cached_faces"`
	Threshold     float64     `json:"threshold"`
	SearchEnabled bool        `json:"search_enabled"`
	LastSync      *SyncStatus `json:"last_sync,omitempty"`
}

// Identification is the result of one probe.
type Identification struct {
	Verdict     identity.Verdict    `json:"verdict"`
	Candidates  []matcher.Candidate `json:"candidates"`
	Fingerprint string              `json:"gallery_fingerprint"`
}

// Service is constructed once at startup and shared by all requests.
type Service struct {
	store    *gallery.LocalStore
	sync     *gallery.Synchronizer
	cache    *facecache.Cache
	matcher  matcher.Provider
	policy   identity.Policy
	osint    *osint.Aggregator
	recorder audit.Recorder
	logger   *slog.Logger

	sem   chan struct{}
	flock *flock.Flock

	mu       sync.RWMutex
	lastSync *SyncStatus
}

// New creates the service and its gallery directory.
func New(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Sync == nil || opts.Matcher == nil {
		return nil, errors.New("store, synchronizer and matcher are required")
	}
	if err := opts.Store.Ensure(); err != nil {
		return nil, err
	}
	if opts.Recorder == nil {
		opts.Recorder = audit.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:    opts.Store,
		sync:     opts.Sync,
		cache:    opts.Cache,
		matcher:  opts.Matcher,
		policy:   opts.Policy,
		osint:    opts.OSINT,
		recorder: opts.Recorder,
		logger:   opts.Logger.With("component", "scan"),
		sem:      make(chan struct{}, 1),
		flock:    flock.New(filepath.Join(opts.Store.Dir(), LockFile)),
	}, nil
}

// lock enters the gallery critical section: an in-process semaphore for
// concurrent requests and a file lock for other processes sharing the directory.
func (s *Service) lock(ctx context.Context) (func(), error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, timeout(ctx)
	}

	locked, err := s.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		<-s.sem
		if ctx.Err() != nil {
			return nil, timeout(ctx)
		}
		return nil, fmt.Errorf("acquire gallery lock: %w", err)
	}

	return func() {
		if err := s.flock.Unlock(); err != nil {
			s.logger.Warn("failed to release gallery lock", "error", err)
		}
		<-s.sem
	}, nil
}

func timeout(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrTimeout, context.Cause(ctx))
}

// orTimeout maps err to ErrTimeout when the context has ended.
func orTimeout(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return timeout(ctx)
	}
	return err
}

// reconcile runs one reconciliation and remembers its outcome. Callers hold the lock.
func (s *Service) reconcile(ctx context.Context) (gallery.SyncResult, error) {
	result, err := s.sync.Reconcile(ctx)
	status := &SyncStatus{At: time.Now().UTC(), Result: result}
	if err != nil {
		status.Error = err.Error()
	}
	s.mu.Lock()
	s.lastSync = status
	s.mu.Unlock()
	return result, err
}

// Identify reconciles the gallery, matches the probe against it and decides
// the identity. A failed reconciliation is logged and the stale local gallery
// is used. An empty gallery yields Unknown without consulting the provider.
func (s *Service) Identify(ctx context.Context, probe []byte) (Identification, error) {
	if _, err := imageutil.Validate(probe); err != nil {
		return Identification{}, fmt.Errorf("%w: %w", ErrInvalidProbe, err)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return Identification{}, err
	}

	if _, err := s.reconcile(ctx); err != nil {
		if ctx.Err() != nil {
			unlock()
			return Identification{}, timeout(ctx)
		}
		s.logger.Warn("gallery reconciliation failed, using local gallery", "error", err)
	}

	keys, err := s.store.Keys()
	if err != nil {
		unlock()
		return Identification{}, err
	}
	fingerprint := gallery.Fingerprint(keys)
	empty := len(keys) == 0

	var result matcher.Result
	if !empty {
		result = s.matcher.Find(ctx, probe, s.store)
	}
	unlock()

	if ctx.Err() != nil {
		return Identification{}, timeout(ctx)
	}

	verdict := identity.Decide(result, empty, s.policy)
	s.logger.Info("probe identified",
		"name", verdict.Name,
		"confidence", verdict.Confidence,
		"matched", verdict.Matched)

	rec := audit.NewRecord(verdict, fingerprint, probe, result.ProbeEmbedding)
	if err := s.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record verdict", "error", err)
	}

	candidates := result.Candidates
	if candidates == nil {
		candidates = []matcher.Candidate{}
	}
	return Identification{Verdict: verdict, Candidates: candidates, Fingerprint: fingerprint}, nil
}

// Enroll adds a reference image for name, mirrors it to the remote gallery and
// invalidates the derived cache.
func (s *Service) Enroll(ctx context.Context, name, filename string, content []byte) (gallery.Entry, error) {
	if _, err := imageutil.Validate(content); err != nil {
		return gallery.Entry{}, fmt.Errorf("%w: %w", ErrInvalidUpload, err)
	}
	key, err := gallery.NewKey(name, filename)
	if err != nil {
		return gallery.Entry{}, err
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return gallery.Entry{}, err
	}
	defer unlock()

	entry, err := s.sync.Publish(ctx, key, content)
	if err != nil {
		return gallery.Entry{}, orTimeout(ctx, err)
	}
	return entry, nil
}

// Remove deletes an entry remotely and locally.
func (s *Service) Remove(ctx context.Context, key string) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return orTimeout(ctx, s.sync.Unpublish(ctx, key))
}

// Sync reconciles the gallery with the remote store. Per-key failures are
// reported in the result.
func (s *Service) Sync(ctx context.Context) (gallery.SyncResult, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return gallery.SyncResult{}, err
	}
	defer unlock()

	result, err := s.reconcile(ctx)
	return result, orTimeout(ctx, err)
}

// Warm builds the match provider's index for the current gallery if the
// provider supports it.
func (s *Service) Warm(ctx context.Context) error {
	p, ok := s.matcher.(Preparer)
	if !ok {
		return nil
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return orTimeout(ctx, p.Prepare(ctx, s.store))
}

// Entries lists the local gallery.
func (s *Service) Entries() ([]gallery.Entry, error) {
	entries, err := s.store.List()
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []gallery.Entry{}
	}
	return entries, nil
}

// Status reports the gallery and cache state.
func (s *Service) Status() (Status, error) {
	keys, err := s.store.Keys()
	if err != nil {
		return Status{}, err
	}
	fp := gallery.Fingerprint(keys)

	st := Status{
		GalleryDir:    s.store.Dir(),
		Remote:        s.sync.HasRemote(),
		Entries:       len(keys),
		Fingerprint:   fp,
		Threshold:     s.policy.Threshold,
		SearchEnabled: s.osint != nil,
	}
	if s.cache != nil {
		st.CacheFresh = s.cache.Matches(fp)
		st.CachedFaces = s.cache.Count()
	}

	s.mu.RLock()
	if s.lastSync != nil {
		last := *s.lastSync
		st.LastSync = &last
	}
	s.mu.RUnlock()
	return st, nil
}

// Investigate runs an OSINT investigation of target.
func (s *Service) Investigate(ctx context.Context, target string) (osint.Report, error) {
	if s.osint == nil {
		return osint.Report{}, ErrSearchDisabled
	}
	report, err := s.osint.Investigate(ctx, target)
	if err != nil {
		return osint.Report{}, orTimeout(ctx, err)
	}
	return report, nil
}

// RecentDecisions returns the latest audited verdicts.
func (s *Service) RecentDecisions(ctx context.Context, limit int) ([]audit.Record, error) {
	return s.recorder.Recent(ctx, limit)
}
