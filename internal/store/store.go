package store

import "context"

// StateStore persists small JSON documents by key so trackers can resume after a restart.
type StateStore interface {
	// Load decodes the document stored under key into v. found is false when nothing is stored.
	Load(ctx context.Context, key string, v any) (found bool, err error)
	Save(ctx context.Context, key string, v any) error
}
