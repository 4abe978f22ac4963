// Package storage provides the durable string-keyed store the cart snapshot
// is mirrored into so it survives a restart without waiting on the network.
package storage

import (
	"context"
	"errors"
)

type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var ErrNotFound = errors.New("storage: key not found")
