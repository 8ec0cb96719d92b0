package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Drivers accepted by Config.Driver.
const (
	DriverNone  = "none"
	DriverLocal = "local"
	DriverS3    = "s3"
)

// ErrNotFound is returned by Read when the key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Storage is a flat key/value object store.
type Storage interface {
	// Write stores content under key. size is -1 when unknown.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Read opens the object stored under key. The caller closes it.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns the objects whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Config selects and configures a backend.
type Config struct {
	Driver string
	Local  LocalConfig
	S3     S3Config
}

// New builds the configured backend. DriverNone (or empty) returns nil.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverLocal:
		st, err := NewLocalStorage(cfg.Local)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverS3:
		st, err := NewS3Storage(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
