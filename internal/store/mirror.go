package store

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/shopfront/cartsync/internal/domain"
	"github.com/shopfront/cartsync/internal/storage"
)

// snapshotKey is the single durable key the cart is mirrored under. No other
// component writes this key.
const snapshotKey = "cart"

const mirrorTimeout = time.Second

// Mirror keeps a best-effort copy of the cart in durable storage so a fresh
// session has something to render before the first fetch resolves. It is a
// cache, never authoritative: every failure is swallowed and surfaces at most
// as a debug log line.
type Mirror struct {
	storage storage.Storage
	logger  *zap.Logger
}

func NewMirror(st storage.Storage, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{storage: st, logger: logger}
}

// Save serializes the items under the snapshot key.
func (m *Mirror) Save(items domain.Items) {
	data, err := json.Marshal(items)
	if err != nil {
		m.logger.Debug("cart snapshot encode failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := m.storage.Set(ctx, snapshotKey, data); err != nil {
		m.logger.Debug("cart snapshot write failed", zap.Error(err))
	}
}

// Load reads the last snapshot. A missing key, unreadable storage, corrupt
// JSON, or a snapshot that violates the cart invariants all yield an empty
// collection.
func (m *Mirror) Load() domain.Items {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	data, err := m.storage.Get(ctx, snapshotKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Debug("cart snapshot read failed", zap.Error(err))
		}
		return nil
	}
	var items domain.Items
	if err := json.Unmarshal(data, &items); err != nil {
		m.logger.Debug("cart snapshot corrupt, ignoring", zap.Error(err))
		return nil
	}
	if err := items.Validate(); err != nil {
		m.logger.Debug("cart snapshot invalid, ignoring", zap.Error(err))
		return nil
	}
	return items
}

// Drop removes the snapshot (logout and reset flows).
func (m *Mirror) Drop() {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := m.storage.Delete(ctx, snapshotKey); err != nil {
		m.logger.Debug("cart snapshot delete failed", zap.Error(err))
	}
}
