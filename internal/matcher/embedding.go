package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/neural-scan/internal/constants"
	"github.com/kozaktomas/neural-scan/internal/embedding"
	"github.com/kozaktomas/neural-scan/internal/facecache"
	"github.com/kozaktomas/neural-scan/internal/gallery"
	"github.com/kozaktomas/neural-scan/internal/imageutil"
)

// FaceEmbedder computes face embeddings for an image.
type FaceEmbedder interface {
	ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*embedding.FaceResponse, error)
}

// EmbeddingMatcher finds candidates by nearest-neighbour search over the face
// cache. The cache is rebuilt whenever the gallery fingerprint no longer matches.
type EmbeddingMatcher struct {
	embedder FaceEmbedder
	cache    *facecache.Cache
	limit    int
	logger   *slog.Logger
}

// NewEmbeddingMatcher creates a matcher returning at most limit candidates.
func NewEmbeddingMatcher(embedder FaceEmbedder, cache *facecache.Cache, limit int, logger *slog.Logger) *EmbeddingMatcher {
	if limit <= 0 {
		limit = constants.DefaultMatchLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EmbeddingMatcher{
		embedder: embedder,
		cache:    cache,
		limit:    limit,
		logger:   logger.With("component", "matcher"),
	}
}

// Find embeds the probe and returns the nearest gallery entries, best first.
// The index is only loaded or rebuilt once the probe has an embedding.
func (m *EmbeddingMatcher) Find(ctx context.Context, probe []byte, store *gallery.LocalStore) Result {
	entries, err := store.List()
	if err != nil {
		return Failed(fmt.Sprintf("listing gallery: %v", err))
	}
	if len(entries) == 0 {
		return Found(nil)
	}

	vec, ok, err := m.embed(ctx, probe)
	if err != nil {
		return Failed(fmt.Sprintf("embedding probe: %v", err))
	}
	if !ok {
		return Failed("no face detected in probe")
	}

	if err := m.ensureIndex(ctx, store, entries); err != nil {
		return Failed(fmt.Sprintf("building face index: %v", err))
	}

	neighbors, err := m.cache.Search(vec, m.limit)
	if err != nil {
		return Failed(fmt.Sprintf("searching face index: %v", err))
	}

	byKey := make(map[string]gallery.Entry, len(entries))
	for _, e := range entries {
		byKey[e.Key] = e
	}
	candidates := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		entry, ok := byKey[n.Key]
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{Entry: entry, Distance: n.Distance})
	}

	result := Found(candidates)
	result.ProbeEmbedding = vec
	return result
}

// Prepare loads or rebuilds the face index for the current gallery.
func (m *EmbeddingMatcher) Prepare(ctx context.Context, store *gallery.LocalStore) error {
	entries, err := store.List()
	if err != nil {
		return err
	}
	return m.ensureIndex(ctx, store, entries)
}

func (m *EmbeddingMatcher) ensureIndex(ctx context.Context, store *gallery.LocalStore, entries []gallery.Entry) error {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	fp := gallery.Fingerprint(keys)

	ok, err := m.cache.Load(fp)
	if err != nil {
		m.logger.Warn("face cache load failed, rebuilding", "error", err)
	}
	if ok {
		return nil
	}

	m.logger.Info("building face index", "entries", len(entries))
	var (
		vectors []facecache.Vector
		skipped []string
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := store.Read(e.Key)
		if err != nil {
			return err
		}
		vec, ok, err := m.embed(ctx, data)
		switch {
		case errors.Is(err, imageutil.ErrInvalidImage):
			m.logger.Warn("skipping unreadable gallery image", "key", e.Key, "error", err)
			skipped = append(skipped, e.Key)
		case err != nil:
			// Server errors abort the build so a partial index is never persisted.
			return fmt.Errorf("embedding %s: %w", e.Key, err)
		case !ok:
			m.logger.Warn("no face detected in gallery image", "key", e.Key)
			skipped = append(skipped, e.Key)
		default:
			vectors = append(vectors, facecache.Vector{Key: e.Key, Embedding: vec})
		}
	}
	return m.cache.Build(fp, vectors, skipped)
}

// embed returns the embedding of the most confident face in data.
func (m *EmbeddingMatcher) embed(ctx context.Context, data []byte) ([]float32, bool, error) {
	normalized, err := imageutil.Normalize(data, constants.MaxImageSize)
	if err != nil {
		return nil, false, err
	}
	resp, err := m.embedder.ComputeFaceEmbeddings(ctx, normalized)
	if err != nil {
		return nil, false, err
	}
	face, ok := resp.BestFace()
	if !ok {
		return nil, false, nil
	}
	return face.Embedding, true, nil
}
