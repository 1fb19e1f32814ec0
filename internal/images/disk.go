package images

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"

	"github.com/peterbourgon/diskv/v3"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

// DiskStore keeps images as flat files under one directory.
type DiskStore struct {
	d *diskv.Diskv
}

// NewDiskStore returns a DiskStore rooted at dir with a read cache of at
// most cacheBytes.
func NewDiskStore(dir string, cacheBytes uint64) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("images.NewDiskStore: %w: directory is required", domain.ErrValidation)
	}
	return &DiskStore{d: diskv.New(diskv.Options{
		BasePath:     dir,
		CacheSizeMax: cacheBytes,
		FilePerm:     0o640,
		PathPerm:     0o750,
	})}, nil
}

func (s *DiskStore) Save(_ context.Context, data []byte, name string) error {
	if err := checkName(name); err != nil {
		return fmt.Errorf("images.DiskStore.Save: %w", err)
	}
	if err := s.d.Write(name, data); err != nil {
		return fmt.Errorf("images.DiskStore.Save: %w", err)
	}
	return nil
}

func (s *DiskStore) Load(_ context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, fmt.Errorf("images.DiskStore.Load: %w", err)
	}
	data, err := s.d.Read(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("images.DiskStore.Load: %w", err)
	}
	return data, nil
}

func (s *DiskStore) Remove(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return fmt.Errorf("images.DiskStore.Remove: %w", err)
	}
	if !s.d.Has(name) {
		return nil
	}
	if err := s.d.Erase(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("images.DiskStore.Remove: %w", err)
	}
	return nil
}

func (s *DiskStore) Names(ctx context.Context) ([]string, error) {
	names := []string{}
	for key := range s.d.Keys(ctx.Done()) {
		if ValidName(key) {
			names = append(names, key)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("images.DiskStore.Names: %w", err)
	}
	slices.Sort(names)
	return names, nil
}
