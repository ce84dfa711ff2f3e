package gallery

import "context"

// RemoteStore is the object store holding the authoritative gallery.
// Names are full object names; List returns every object under prefix.
type RemoteStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
}

// DerivedCache is an index computed from the gallery contents. It owns its
// on-disk artifacts: only it knows their names and only it removes them.
type DerivedCache interface {
	Invalidate() error
	IsArtifact(name string) bool
}
