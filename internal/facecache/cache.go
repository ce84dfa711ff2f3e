// Package facecache persists the face-embedding index derived from the local
// gallery. The index is valid only for the gallery key set whose fingerprint it
// was built from; any change to the key set invalidates it.
package facecache

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/neural-scan/internal/constants"
)

const (
	// GraphFile is the exported hnsw graph.
	GraphFile = "faces.hnsw"
	// MetaFile holds the fingerprint and node-to-key table of GraphFile.
	MetaFile = GraphFile + ".meta"

	metadataVersion = 1
)

// ErrNotLoaded is returned by Search before Load or Build succeeded.
var ErrNotLoaded = errors.New("face cache not loaded")

// IsArtifact reports whether a file name belongs to the cache rather than to the gallery.
func IsArtifact(name string) bool {
	return name == GraphFile || name == MetaFile
}

// Metadata describes one persisted build.
type Metadata struct {
	Fingerprint string    `json:"fingerprint"`
	Keys        []string  `json:"keys"`              // node ID -> gallery key
	Skipped     []string  `json:"skipped,omitempty"` // entries without a usable face
	Dim         int       `json:"dim"`
	BuildTime   time.Time `json:"build_time"`
	Version     int       `json:"version"`
}

// Vector is the embedding of one gallery entry.
type Vector struct {
	Key       string
	Embedding []float32
}

// Neighbor is one search hit.
type Neighbor struct {
	Key      string
	Distance float64
}

// Cache is the on-disk face index of one gallery directory.
type Cache struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	graph *hnsw.Graph[int64]
	saved *hnsw.SavedGraph[int64]
	meta  *Metadata
}

// New creates a cache whose artifacts live in dir.
func New(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{dir: dir, logger: logger.With("component", "face_cache")}
}

// Path returns the graph file path.
func (c *Cache) Path() string {
	return filepath.Join(c.dir, GraphFile)
}

func (c *Cache) metaPath() string {
	return filepath.Join(c.dir, MetaFile)
}

// IsArtifact reports whether name is one of this cache's files.
func (c *Cache) IsArtifact(name string) bool {
	return IsArtifact(name)
}

// Invalidate drops the in-memory index and deletes the persisted artifacts.
func (c *Cache) Invalidate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	return c.removeFiles()
}

func (c *Cache) reset() {
	c.graph = nil
	c.saved = nil
	c.meta = nil
}

func (c *Cache) removeFiles() error {
	var errs []error
	for _, p := range []string{c.Path(), c.metaPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("removing face cache: %w", err)
	}
	return nil
}

// Matches reports whether the loaded index was built for fingerprint.
func (c *Cache) Matches(fingerprint string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta != nil && c.meta.Fingerprint == fingerprint
}

// Metadata returns a copy of the loaded build's metadata, or nil.
func (c *Cache) Metadata() *Metadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.meta == nil {
		return nil
	}
	m := *c.meta
	m.Keys = slices.Clone(c.meta.Keys)
	m.Skipped = slices.Clone(c.meta.Skipped)
	return &m
}

// Count returns the number of indexed faces.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.meta == nil {
		return 0
	}
	return len(c.meta.Keys)
}

// Load makes the persisted index current if it was built for fingerprint.
// A stale or unreadable index is deleted and Load returns false.
func (c *Cache) Load(fingerprint string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.meta != nil && c.meta.Fingerprint == fingerprint {
		return true, nil
	}
	c.reset()

	data, err := os.ReadFile(c.metaPath()) //nolint:gosec // path is from trusted config
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading face cache metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil || meta.Version != metadataVersion || meta.Fingerprint != fingerprint {
		c.logger.Info("discarding stale face cache")
		return false, c.removeFiles()
	}

	if len(meta.Keys) > 0 {
		if _, err := os.Stat(c.Path()); err != nil {
			c.logger.Warn("face cache graph missing, discarding metadata", "error", err)
			return false, c.removeFiles()
		}
		saved, err := hnsw.LoadSavedGraph[int64](c.Path())
		if err != nil {
			c.logger.Warn("face cache graph unreadable, discarding", "error", err)
			return false, c.removeFiles()
		}
		saved.EfSearch = constants.HNSWEfSearch
		c.saved = saved
	}

	c.meta = &meta
	c.logger.Debug("face cache loaded", "faces", len(meta.Keys))
	return true, nil
}

// Build indexes vectors for fingerprint and persists the result. Vectors whose
// dimension differs from the first one are skipped. An empty vector set is a
// valid build that only writes metadata.
func (c *Cache) Build(fingerprint string, vectors []Vector, skipped []string) error {
	meta := Metadata{
		Fingerprint: fingerprint,
		Skipped:     slices.Clone(skipped),
		BuildTime:   time.Now().UTC(),
		Version:     metadataVersion,
	}

	var g *hnsw.Graph[int64]
	for _, v := range vectors {
		if len(v.Embedding) == 0 {
			meta.Skipped = append(meta.Skipped, v.Key)
			continue
		}
		if meta.Dim == 0 {
			meta.Dim = len(v.Embedding)
			g = newGraph()
		}
		if len(v.Embedding) != meta.Dim {
			c.logger.Warn("skipping embedding with mismatched dimension",
				"key", v.Key, "dim", len(v.Embedding), "expected", meta.Dim)
			meta.Skipped = append(meta.Skipped, v.Key)
			continue
		}
		g.Add(hnsw.MakeNode(int64(len(meta.Keys)), v.Embedding))
		meta.Keys = append(meta.Keys, v.Key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()

	if err := c.removeFiles(); err != nil {
		return err
	}
	if g != nil {
		if err := writeAtomic(c.dir, GraphFile, g.Export); err != nil {
			return fmt.Errorf("exporting face graph: %w", err)
		}
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling face cache metadata: %w", err)
	}
	if err := writeAtomic(c.dir, MetaFile, func(w io.Writer) error {
		_, err := w.Write(metaData)
		return err
	}); err != nil {
		return fmt.Errorf("writing face cache metadata: %w", err)
	}

	c.graph = g
	c.meta = &meta
	c.logger.Info("face cache built", "faces", len(meta.Keys), "skipped", len(meta.Skipped))
	return nil
}

// Search returns up to k nearest gallery keys to query, closest first.
func (c *Cache) Search(query []float32, k int) ([]Neighbor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.meta == nil {
		return nil, ErrNotLoaded
	}
	if len(c.meta.Keys) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != c.meta.Dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), c.meta.Dim)
	}

	var nodes []hnsw.Node[int64]
	switch {
	case c.graph != nil:
		nodes = c.graph.Search(query, min(k, len(c.meta.Keys)))
	case c.saved != nil:
		nodes = c.saved.Search(query, min(k, len(c.meta.Keys)))
	default:
		return nil, ErrNotLoaded
	}

	neighbors := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		if n.Key < 0 || int(n.Key) >= len(c.meta.Keys) {
			continue
		}
		// Distances are recomputed exactly; the graph only orders candidates.
		neighbors = append(neighbors, Neighbor{
			Key:      c.meta.Keys[n.Key],
			Distance: CosineDistance(query, n.Value),
		})
	}
	slices.SortStableFunc(neighbors, func(a, b Neighbor) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	return neighbors, nil
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	g.EfSearch = constants.HNSWEfSearch
	return g
}

// writeAtomic writes name in dir through a hidden temp file and a rename.
func writeAtomic(dir, name string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, name))
}
