// Package images is the image side-channel: record images are kept outside
// the entity store and referenced from records by name.
package images

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/tripbook/backend/internal/domain"
)

// Driver names a Store implementation.
type Driver string

const (
	DriverDisk   Driver = "disk"
	DriverS3     Driver = "s3"
	DriverMemory Driver = "memory"
)

// Ext is the extension every stored image name carries.
const Ext = ".jpg"

// Store keeps image bytes by name.
type Store interface {
	// Save writes data under name, replacing anything already there.
	Save(ctx context.Context, data []byte, name string) error
	// Load returns the bytes stored under name.
	// Returns domain.ErrNotFound if nothing is stored there.
	Load(ctx context.Context, name string) ([]byte, error)
	// Remove deletes name. Removing a missing name is not an error.
	Remove(ctx context.Context, name string) error
	// Names lists every stored name in lexical order.
	Names(ctx context.Context) ([]string, error)
}

// NewName returns a fresh image name: a random UUID plus Ext.
func NewName() string {
	return uuid.NewString() + Ext
}

// ValidName reports whether name is a bare file name with the image
// extension. Names coming from requests are checked before any driver
// sees them.
func ValidName(name string) bool {
	if name == "" || name != path.Base(name) || strings.ContainsAny(name, `/\`) {
		return false
	}
	return strings.HasSuffix(name, Ext) && len(name) > len(Ext)
}

func checkName(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: invalid image name %q", domain.ErrValidation, name)
	}
	return nil
}

// Config selects and configures a driver.
type Config struct {
	Driver Driver
	// Dir is the base directory for the disk driver.
	Dir string
	// CacheBytes bounds the disk driver's in-memory read cache.
	CacheBytes uint64
	S3         S3Config
}

// Open returns the Store selected by cfg.Driver. An empty driver means disk.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverDisk:
		return NewDiskStore(cfg.Dir, cfg.CacheBytes)
	case DriverS3:
		return NewS3Store(ctx, cfg.S3)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("images.Open: unknown driver %q", cfg.Driver)
	}
}
