package storage

import (
	"context"
	"errors"
)

// ErrConnection is returned when the destination service cannot be reached or rejects the credentials
var ErrConnection = errors.New("destination storage unavailable")

// BlobStore defines the destination operations needed to copy an object from a URL
type BlobStore interface {
	// EnsureContainer verifies the connection and creates the container if it is missing
	EnsureContainer(ctx context.Context, container string) error

	// StartCopy starts a server-side copy of sourceURL into container/name, overwriting it
	StartCopy(ctx context.Context, container, name, sourceURL string) (CopyHandle, error)

	// CopyStatus returns the progress of a copy previously started on container/name
	CopyStatus(ctx context.Context, container, name string) (CopyState, error)
}

// CopyStatus is the state of a server-side copy
type CopyStatus string

const (
	CopyPending CopyStatus = "pending"
	CopySuccess CopyStatus = "success"
	CopyFailed  CopyStatus = "failed"
	CopyAborted CopyStatus = "aborted"
)

// Terminal reports whether no further progress is possible
func (s CopyStatus) Terminal() bool {
	return s == CopySuccess || s == CopyFailed || s == CopyAborted
}

// CopyHandle identifies a started copy
type CopyHandle struct {
	ID     string
	Status CopyStatus
}

// CopyState contains the copy fields of the destination object properties
type CopyState struct {
	Status      CopyStatus
	Progress    string // bytes copied/total, as reported by the service
	Description string
	Size        int64
}

// Config contains destination client configuration
type Config struct {
	Endpoint    string
	Account     string
	Key         string
	UseIdentity bool
}
