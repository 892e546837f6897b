package domain

import "context"

// KVStore is the host key/value storage collaborator.
//
// No transactions, no schema enforcement; Get reports (nil, false, nil) for a missing key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}
