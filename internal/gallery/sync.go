package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Snapshot is the pair of key sets seen at the start of one reconciliation.
type Snapshot struct {
	Local  map[string]struct{}
	Remote map[string]struct{}
}

// Diff returns the keys to download (remote only) and to delete (local only), sorted.
func (s Snapshot) Diff() (toDownload, toDelete []string) {
	for k := range s.Remote {
		if _, ok := s.Local[k]; !ok {
			toDownload = append(toDownload, k)
		}
	}
	for k := range s.Local {
		if _, ok := s.Remote[k]; !ok {
			toDelete = append(toDelete, k)
		}
	}
	slices.Sort(toDownload)
	slices.Sort(toDelete)
	return toDownload, toDelete
}

// KeyFailure records a key that could not be reconciled.
type KeyFailure struct {
	Key    string `json:"key"`
	Op     string `json:"op"` // "download" or "delete"
	Reason string `json:"error"`
	Err    error  `json:"-"`
}

func newKeyFailure(key, op string, err error) KeyFailure {
	return KeyFailure{Key: key, Op: op, Reason: err.Error(), Err: err}
}

func (f KeyFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Op, f.Key, f.Err)
}

// SyncResult describes what one reconciliation changed.
type SyncResult struct {
	Added            []string     `json:"added"`
	Removed          []string     `json:"removed"`
	Failed           []KeyFailure `json:"failed,omitempty"`
	Changed          bool         `json:"changed"`
	CacheInvalidated bool         `json:"cache_invalidated"`
}

// Err returns an ErrPartialSync error when any key failed, nil otherwise.
func (r SyncResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed)+1)
	errs = append(errs, fmt.Errorf("%w: %d key(s) failed", ErrPartialSync, len(r.Failed)))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// ProgressFunc is called after each key is processed.
type ProgressFunc func(done, total int, key string)

// Synchronizer reconciles a LocalStore against a RemoteStore and invalidates
// the derived cache whenever the local key set changes. A nil remote means the
// local gallery is authoritative and reconciliation is a no-op.
//
// Synchronizer does no locking of its own; callers serialize Reconcile,
// Publish and Unpublish per gallery.
type Synchronizer struct {
	remote   RemoteStore
	local    *LocalStore
	prefix   string
	cache    DerivedCache
	logger   *slog.Logger
	progress ProgressFunc
}

// NewSynchronizer creates a synchronizer for the objects under prefix.
func NewSynchronizer(remote RemoteStore, local *LocalStore, prefix string, cache DerivedCache, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Synchronizer{
		remote: remote,
		local:  local,
		prefix: prefix,
		cache:  cache,
		logger: logger.With("component", "gallery_sync"),
	}
}

// SetProgress installs a progress callback for subsequent reconciliations.
func (s *Synchronizer) SetProgress(fn ProgressFunc) {
	s.progress = fn
}

// HasRemote reports whether a remote gallery is configured.
func (s *Synchronizer) HasRemote() bool {
	return s.remote != nil
}

// ObjectName returns the remote object name for key.
func (s *Synchronizer) ObjectName(key string) string {
	return s.prefix + key
}

// memberKey maps a remote object name to a gallery key. Directory markers,
// nested objects, hidden names and cache artifacts are not members.
func (s *Synchronizer) memberKey(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, s.prefix)
	if !ok || rest == "" || strings.HasSuffix(rest, "/") || strings.Contains(rest, "/") {
		return "", false
	}
	if ValidateKey(rest) != nil || s.isArtifact(rest) {
		return "", false
	}
	return rest, true
}

func (s *Synchronizer) isArtifact(name string) bool {
	return s.cache != nil && s.cache.IsArtifact(name)
}

// RemoteKeys lists the gallery keys present remotely.
func (s *Synchronizer) RemoteKeys(ctx context.Context) (map[string]struct{}, error) {
	names, err := s.remote.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %q: %w", ErrRemoteUnavailable, s.prefix, err)
	}
	keys := make(map[string]struct{}, len(names))
	for _, name := range names {
		if key, ok := s.memberKey(name); ok {
			keys[key] = struct{}{}
		}
	}
	return keys, nil
}

// Snapshot captures the local and remote key sets.
func (s *Synchronizer) Snapshot(ctx context.Context) (Snapshot, error) {
	remote, err := s.RemoteKeys(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	localKeys, err := s.local.Keys()
	if err != nil {
		return Snapshot{}, err
	}
	local := make(map[string]struct{}, len(localKeys))
	for _, k := range localKeys {
		local[k] = struct{}{}
	}
	return Snapshot{Local: local, Remote: remote}, nil
}

// Reconcile makes the local key set equal to the remote one. A failed remote
// listing returns an ErrRemoteUnavailable error and leaves the local store
// untouched. Individual key failures are collected in the result and do not stop
// the remaining keys. On cancellation the keys already applied stay applied and
// the context error is returned.
func (s *Synchronizer) Reconcile(ctx context.Context) (result SyncResult, err error) {
	if s.remote == nil {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	toDownload, toDelete := snap.Diff()
	total := len(toDownload) + len(toDelete)
	done := 0

	// Invalidation runs even when the loop is cut short by cancellation.
	defer func() {
		result.Changed = len(result.Added)+len(result.Removed) > 0
		if result.Changed {
			result.CacheInvalidated = s.invalidate()
		}
	}()

	for _, key := range toDownload {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.download(ctx, key); err != nil {
			s.logger.Warn("gallery download failed", "key", key, "error", err)
			result.Failed = append(result.Failed, newKeyFailure(key, "download", err))
		} else {
			result.Added = append(result.Added, key)
		}
		done++
		s.report(done, total, key)
	}

	for _, key := range toDelete {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.local.Remove(key); err != nil {
			s.logger.Warn("gallery delete failed", "key", key, "error", err)
			result.Failed = append(result.Failed, newKeyFailure(key, "delete", err))
		} else {
			result.Removed = append(result.Removed, key)
		}
		done++
		s.report(done, total, key)
	}

	if total > 0 {
		s.logger.Info("gallery reconciled",
			"added", len(result.Added),
			"removed", len(result.Removed),
			"failed", len(result.Failed))
	}
	return result, nil
}

func (s *Synchronizer) download(ctx context.Context, key string) error {
	data, err := s.remote.Get(ctx, s.ObjectName(key))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	return s.local.Add(key, data)
}

func (s *Synchronizer) report(done, total int, key string) {
	if s.progress != nil {
		s.progress(done, total, key)
	}
}

func (s *Synchronizer) invalidate() bool {
	if s.cache == nil {
		return false
	}
	if err := s.cache.Invalidate(); err != nil {
		s.logger.Error("derived cache invalidation failed", "error", err)
		return false
	}
	return true
}

// Publish adds a new entry locally and mirrors it to the remote gallery, then
// invalidates the derived cache. If the remote write fails the local write is
// rolled back, so the next reconciliation cannot silently drop the entry.
func (s *Synchronizer) Publish(ctx context.Context, key string, content []byte) (Entry, error) {
	if err := ValidateKey(key); err != nil {
		return Entry{}, err
	}
	if err := s.local.Add(key, content); err != nil {
		return Entry{}, err
	}

	if s.remote != nil {
		if err := s.remote.Put(ctx, s.ObjectName(key), content); err != nil {
			if rmErr := s.local.Remove(key); rmErr != nil {
				s.logger.Error("rollback of local entry failed", "key", key, "error", rmErr)
			}
			s.invalidate()
			return Entry{}, fmt.Errorf("%w: uploading %s: %w", ErrRemoteUnavailable, key, err)
		}
	}

	s.invalidate()
	s.logger.Info("gallery entry published", "key", key)
	return NewEntry(key, s.local.Path(key)), nil
}

// Unpublish deletes an entry remotely and locally, then invalidates the derived cache.
func (s *Synchronizer) Unpublish(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if !s.local.Contains(key) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if s.remote != nil {
		if err := s.remote.Delete(ctx, s.ObjectName(key)); err != nil {
			return fmt.Errorf("%w: deleting %s: %w", ErrRemoteUnavailable, key, err)
		}
	}
	if err := s.local.Remove(key); err != nil {
		return err
	}
	s.invalidate()
	s.logger.Info("gallery entry removed", "key", key)
	return nil
}
