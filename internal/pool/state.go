package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"pasanaco/internal/ledger"
	"pasanaco/internal/model"
	"pasanaco/internal/storage/postgres"
)

// StateStore persists pool snapshots.
type StateStore interface {
	Load(ctx context.Context) (model.PoolSnapshot, bool, error)
	Save(ctx context.Context, snap model.PoolSnapshot) error
}

// FileStateStore stores the snapshot in a local JSON file.
type FileStateStore struct {
	Path string
}

func (s *FileStateStore) Load(ctx context.Context) (model.PoolSnapshot, bool, error) {
	if s == nil || s.Path == "" {
		return model.PoolSnapshot{}, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, fmt.Errorf("read state: %w", err)
	}

	var snap model.PoolSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("parse state: %w", err)
	}
	return snap, true, nil
}

func (s *FileStateStore) Save(ctx context.Context, snap model.PoolSnapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// DBStateStore stores the snapshot in the pool_state table.
type DBStateStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (model.PoolSnapshot, bool, error) {
	if s == nil || s.Store == nil {
		return model.PoolSnapshot{}, false, nil
	}
	return s.Store.LoadSnapshot(ctx, s.Name)
}

func (s *DBStateStore) Save(ctx context.Context, snap model.PoolSnapshot) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveSnapshot(ctx, s.Name, snap)
}

// Open restores the pool saved in store, or creates a fresh one when the store
// is empty. The stored configuration must match cfg. The returned bool reports
// whether state was restored.
func Open(ctx context.Context, cfg Config, store StateStore, assets ledger.AssetLedger, opts ...Option) (*Pool, bool, error) {
	if store == nil {
		p, err := New(cfg, assets, opts...)
		return p, false, err
	}
	opts = append(opts, WithStateStore(store))

	snap, ok, err := store.Load(ctx)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		p, err := New(cfg, assets, opts...)
		return p, false, err
	}
	if err := CheckConfig(cfg, snap); err != nil {
		return nil, false, err
	}
	p, err := Restore(snap, assets, opts...)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}
