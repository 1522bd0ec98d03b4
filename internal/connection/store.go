package connection

import "context"

// Store persists profiles. Implementations live in internal/store.
//
// Get returns a not_found *errs.Error for unknown ids. Delete of an unknown
// id is not an error. List returns profiles in insertion order.
type Store interface {
	List(ctx context.Context) ([]Profile, error)
	Get(ctx context.Context, id string) (Profile, error)
	Save(ctx context.Context, p Profile) error
	Delete(ctx context.Context, id string) error
}
