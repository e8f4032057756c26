package persist

import (
	"fmt"
	"time"

	"github.com/project-imas/securefoundation/errs"
)

// VersionedData is the raw keychain artifact plus the version it was read at.
type VersionedData struct {
	Data      []byte
	Version   string // content hash
	Timestamp time.Time
}

// Store persists the keychain as one opaque artifact. Implementations must
// replace the artifact atomically: a reader sees either the previous bytes or
// the new bytes, never a mix.
type Store interface {
	// Save replaces the artifact. When expectedVersion is non-empty and does not
	// match the stored version, Save fails with a ConcurrencyError.
	Save(data []byte, expectedVersion string) (newVersion string, err error)

	// Load returns the current artifact, or an error wrapping errs.ErrNotFound.
	Load() (*VersionedData, error)

	Exists() (bool, error)

	// Delete destroys the artifact.
	Delete() error

	Ping() error

	Close() error

	GetType() string
}

// StoreConfig selects and parameterises a Store for NewStore.
type StoreConfig struct {
	Type StoreType `json:"type"`

	Config map[string]interface{} `json:"config"`
}

type StoreType string

const (
	StoreTypeFileSystem StoreType = "filesystem"

	StoreTypeMemory StoreType = "memory"
)

// ConcurrencyError reports an optimistic version conflict.
type ConcurrencyError struct {
	ExpectedVersion string
	ActualVersion   string
	Operation       string
}

func (e ConcurrencyError) Error() string {
	return fmt.Sprintf("version conflict in %s: expected version %s, but found %s",
		e.Operation, e.ExpectedVersion, e.ActualVersion)
}

func (e ConcurrencyError) Unwrap() error {
	return errs.ErrConcurrentModification
}

func (e ConcurrencyError) IsConcurrencyError() bool {
	return true
}
