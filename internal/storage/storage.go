// Package storage provides the key-value persistence collaborator backing
// the client's transcript. A single key holds the JSON-serialized message
// sequence; every save is a full overwrite.
package storage

import "context"

// Store persists one opaque snapshot.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
	Close() error
}
