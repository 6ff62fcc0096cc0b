// Package blob is the entry point for artifact storage. It re-exports the core
// contract and constructs the configured driver; callers outside this package
// depend on Store and never import the infra drivers.
package blob

import (
	"context"
	"fmt"

	"fermentlab/internal/blob/core"
	fsstore "fermentlab/internal/infra/blob/fs"
	memorystore "fermentlab/internal/infra/blob/memory"
	s3store "fermentlab/internal/infra/blob/s3"
)

type (
	Driver           = core.Driver
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Info             = core.Info
	Store            = core.Store
	KeyError         = core.KeyError
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrExists      = core.ErrExists
	ErrNotFound    = core.ErrNotFound
)

// S3Config configures the S3 driver.
type S3Config = s3store.Config

// Config selects and configures a driver.
type Config struct {
	Driver string   `yaml:"driver"`  // fs|s3|memory, default fs
	FSRoot string   `yaml:"fs_root"` // default ./gc_output
	S3     S3Config `yaml:"s3"`
}

// Open constructs the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem returns a store rooted at a local directory.
func NewFilesystem(root string) (Store, error) {
	s, err := fsstore.New(root)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns a process-local store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns a bucket-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := s3store.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMockS3ForTests returns an S3 store that talks to an in-process fake
// endpoint.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }
