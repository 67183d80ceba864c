package ports

import "context"

// SessionStore persists string values per session.
// It is the backend behind session affinity: one key per experiment id plus
// the aggregate list of exposed experiments.
type SessionStore interface {
	// Get returns the value for key, or domain.ErrKeyNotFound.
	Get(ctx context.Context, sessionID, key string) (string, error)

	// Set writes a value. Last write wins.
	Set(ctx context.Context, sessionID, key, value string) error

	// Clear removes every key of a session. Clearing an unknown session is not an error.
	Clear(ctx context.Context, sessionID string) error

	// List returns the ids of sessions holding at least one key.
	List(ctx context.Context) ([]string, error)
}

// SessionDumper is implemented by stores that can return all keys of a session at once.
type SessionDumper interface {
	Dump(ctx context.Context, sessionID string) (map[string]string, error)
}
