// Package storage keeps merged podcast artifacts.
//
// Two backends exist: a flat local directory, and a NATS JetStream object
// store bucket for deployments where the API and the workers do not share a
// filesystem. Artifact names are flat; path separators are rejected.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when an artifact does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidName is returned for names that are empty or contain a path.
	ErrInvalidName = errors.New("invalid artifact name")
)

// Info describes a stored artifact.
type Info struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Store is a flat namespace of artifacts.
type Store interface {
	// Put stores the content of r under name, replacing any previous artifact.
	Put(ctx context.Context, name string, r io.Reader) error

	// Open returns a reader for the artifact. The caller must close it.
	Open(ctx context.Context, name string) (io.ReadCloser, Info, error)

	// Delete removes the artifact. Deleting a missing artifact is not an error.
	Delete(ctx context.Context, name string) error

	Exists(ctx context.Context, name string) (bool, error)

	// List returns every artifact currently stored.
	List(ctx context.Context) ([]Info, error)
}

// ValidName checks that name is a bare file name.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
