package scan

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/neural-scan/internal/audit"
	"github.com/kozaktomas/neural-scan/internal/facecache"
	"github.com/kozaktomas/neural-scan/internal/gallery"
	"github.com/kozaktomas/neural-scan/internal/gallery/dirremote"
	"github.com/kozaktomas/neural-scan/internal/identity"
	"github.com/kozaktomas/neural-scan/internal/matcher"
	"github.com/kozaktomas/neural-scan/internal/osint"
)

// fakeProvider names the first gallery entry at a fixed distance.
type fakeProvider struct {
	distance float64
	delay    time.Duration
	calls    atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (p *fakeProvider) Find(ctx context.Context, _ []byte, store *gallery.LocalStore) matcher.Result {
	p.calls.Add(1)
	if p.inFlight.Add(1) > 1 {
		p.overlap.Store(true)
	}
	defer p.inFlight.Add(-1)

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return matcher.Failed(ctx.Err().Error())
		}
	}
	entries, err := store.List()
	if err != nil || len(entries) == 0 {
		return matcher.Found(nil)
	}
	return matcher.Found([]matcher.Candidate{{Entry: entries[0], Distance: p.distance}})
}

// memRecorder keeps records in memory.
type memRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (r *memRecorder) Record(_ context.Context, rec audit.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memRecorder) Recent(_ context.Context, limit int) ([]audit.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[:min(limit, len(r.records))], nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		for y := range 8 {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type testEnv struct {
	svc      *Service
	provider *fakeProvider
	recorder *memRecorder
	store    *gallery.LocalStore
	remote   string
}

func newTestEnv(t *testing.T, remoteKeys ...string) *testEnv {
	t.Helper()
	root := t.TempDir()
	remoteDir := filepath.Join(root, "bucket")
	for _, key := range remoteKeys {
		path := filepath.Join(remoteDir, "db_faces", key)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, pngBytes(t), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	localDir := filepath.Join(root, "faces")
	store := gallery.NewLocalStore(localDir, facecache.IsArtifact)
	cache := facecache.New(localDir, nil)
	syncer := gallery.NewSynchronizer(dirremote.New(remoteDir), store, "db_faces/", cache, nil)
	provider := &fakeProvider{distance: 0.1}
	recorder := &memRecorder{}

	svc, err := New(Options{
		Store:    store,
		Sync:     syncer,
		Cache:    cache,
		Matcher:  provider,
		Policy:   identity.Policy{Threshold: 0.65},
		Recorder: recorder,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return &testEnv{svc: svc, provider: provider, recorder: recorder, store: store, remote: remoteDir}
}

func TestIdentify_EmptyGallery(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.svc.Identify(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Verdict.Name != identity.Unknown || got.Verdict.Confidence != 0 {
		t.Errorf("expected UNKNOWN with zero confidence, got %+v", got.Verdict)
	}
	if env.provider.calls.Load() != 0 {
		t.Error("empty gallery must not reach the match provider")
	}
	if len(env.recorder.records) != 1 {
		t.Errorf("expected verdict to be audited, got %d records", len(env.recorder.records))
	}
}

func TestIdentify_ReconcilesBeforeMatching(t *testing.T) {
	env := newTestEnv(t, "Vladimir_Putin_db_image.jpg")

	got, err := env.svc.Identify(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Verdict.Name != "Vladimir Putin" || !got.Verdict.Matched {
		t.Errorf("expected Vladimir Putin, got %+v", got.Verdict)
	}
	if got.Verdict.Percent() != "90.00%" {
		t.Errorf("expected 90.00%%, got %s", got.Verdict.Percent())
	}
	if !env.store.Contains("Vladimir_Putin_db_image.jpg") {
		t.Error("remote entry should have been downloaded")
	}

	st, err := env.svc.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.LastSync == nil || len(st.LastSync.Result.Added) != 1 {
		t.Errorf("expected last sync to report one added key, got %+v", st.LastSync)
	}
}

func TestIdentify_InvalidProbe(t *testing.T) {
	env := newTestEnv(t, "John_Doe_2.jpg")

	valid := pngBytes(t)
	tests := []struct {
		name  string
		probe []byte
	}{
		{"not an image", []byte("not an image")},
		{"truncated png", valid[:len(valid)/2]},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Identify(context.Background(), tc.probe)
			if !errors.Is(err, ErrInvalidProbe) {
				t.Fatalf("expected ErrInvalidProbe, got %v", err)
			}
			if env.provider.calls.Load() != 0 {
				t.Error("invalid probe must not reach the match provider")
			}
			if len(env.recorder.records) != 0 {
				t.Error("invalid probe must not be audited")
			}
		})
	}
}

func TestIdentify_RemoteUnavailableUsesLocal(t *testing.T) {
	env := newTestEnv(t)
	if err := env.store.Add("John_Doe_2.jpg", pngBytes(t)); err != nil {
		t.Fatal(err)
	}
	// The remote directory was never created, so listing fails.

	got, err := env.svc.Identify(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Verdict.Name != "John Doe" {
		t.Errorf("expected stale local match John Doe, got %+v", got.Verdict)
	}
	if !env.store.Contains("John_Doe_2.jpg") {
		t.Error("failed listing must leave the local gallery untouched")
	}

	st, _ := env.svc.Status()
	if st.LastSync == nil || st.LastSync.Error == "" {
		t.Error("expected last sync error to be recorded")
	}
}

func TestIdentify_BelowThreshold(t *testing.T) {
	env := newTestEnv(t, "John_Doe_2.jpg")
	env.provider.distance = 0.6

	got, err := env.svc.Identify(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatal(err)
	}
	if got.Verdict.Name != identity.UnknownTarget {
		t.Errorf("expected %s, got %s", identity.UnknownTarget, got.Verdict.Name)
	}
}

func TestIdentify_Cancelled(t *testing.T) {
	env := newTestEnv(t, "John_Doe_2.jpg")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := env.svc.Identify(ctx, pngBytes(t)); !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestIdentify_Serialized(t *testing.T) {
	env := newTestEnv(t, "John_Doe_2.jpg")
	env.provider.delay = 20 * time.Millisecond
	probe := pngBytes(t)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Identify(context.Background(), probe); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if env.provider.overlap.Load() {
		t.Error("reconcile + match must not run concurrently")
	}
	if env.provider.calls.Load() != 4 {
		t.Errorf("expected 4 provider calls, got %d", env.provider.calls.Load())
	}
}

func TestEnroll_ReadAfterWrite(t *testing.T) {
	env := newTestEnv(t)
	if err := os.MkdirAll(env.remote, 0o755); err != nil {
		t.Fatal(err)
	}

	entry, err := env.svc.Enroll(context.Background(), "Jane Roe", "selfie.png", pngBytes(t))
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if entry.Key != "Jane Roe_selfie.png" || entry.DisplayName != "Jane Roe" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if _, err := os.Stat(filepath.Join(env.remote, "db_faces", entry.Key)); err != nil {
		t.Errorf("expected entry mirrored remotely: %v", err)
	}

	got, err := env.svc.Identify(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatal(err)
	}
	if got.Verdict.Name != "Jane Roe" {
		t.Errorf("enrolled entry should be visible to the next probe, got %+v", got.Verdict)
	}
}

func TestEnroll_Invalid(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.Enroll(context.Background(), "Jane", "a.png", []byte("nope")); !errors.Is(err, ErrInvalidUpload) {
		t.Errorf("expected ErrInvalidUpload, got %v", err)
	}
	truncated := pngBytes(t)
	truncated = truncated[:len(truncated)/2]
	if _, err := env.svc.Enroll(context.Background(), "Jane", "b.png", truncated); !errors.Is(err, ErrInvalidUpload) {
		t.Errorf("expected ErrInvalidUpload for truncated upload, got %v", err)
	}
	if keys, _ := env.store.Keys(); len(keys) != 0 {
		t.Errorf("rejected uploads must not reach the gallery, got %v", keys)
	}
	if _, err := env.svc.Enroll(context.Background(), "???", "a.png", pngBytes(t)); !errors.Is(err, gallery.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	env := newTestEnv(t, "John_Doe_2.jpg")
	if _, err := env.svc.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := env.svc.Remove(context.Background(), "John_Doe_2.jpg"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	entries, err := env.svc.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty gallery, got %v", entries)
	}
	if err := env.svc.Remove(context.Background(), "John_Doe_2.jpg"); !errors.Is(err, gallery.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSync(t *testing.T) {
	env := newTestEnv(t, "A_1.jpg", "B_1.jpg")

	result, err := env.svc.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Added) != 2 || !result.Changed {
		t.Errorf("unexpected result: %+v", result)
	}

	st, err := env.svc.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 2 || !st.Remote || st.CacheFresh {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestInvestigate_Disabled(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.Investigate(context.Background(), "Jane"); !errors.Is(err, ErrSearchDisabled) {
		t.Errorf("expected ErrSearchDisabled, got %v", err)
	}
}

type staticSearch struct{}

func (staticSearch) Search(_ context.Context, _ string, _ int) ([]osint.Snippet, error) {
	return []osint.Snippet{{Title: "t", Link: "https://l.example", Text: "s"}}, nil
}

func TestInvestigate(t *testing.T) {
	env := newTestEnv(t)
	env.svc.osint = osint.NewAggregator(staticSearch{}, nil)

	report, err := env.svc.Investigate(context.Background(), "Jane")
	if err != nil {
		t.Fatal(err)
	}
	if !report.Found || report.Description != "s" {
		t.Errorf("unexpected report: %+v", report)
	}
	if _, err := env.svc.Investigate(context.Background(), " "); !errors.Is(err, osint.ErrEmptyTarget) {
		t.Errorf("expected ErrEmptyTarget, got %v", err)
	}
}

func TestRecentDecisions(t *testing.T) {
	env := newTestEnv(t)
	for range 3 {
		if _, err := env.svc.Identify(context.Background(), pngBytes(t)); err != nil {
			t.Fatal(err)
		}
	}
	records, err := env.svc.RecentDecisions(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}
