package persist

import (
	"fmt"
	"sync"
	"time"

	"github.com/project-imas/securefoundation/errs"
)

// MemoryStore keeps the artifact in process memory. Tests and ephemeral
// hosts use it.
type MemoryStore struct {
	mu      sync.RWMutex
	data    []byte
	version string
	saved   time.Time
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(data []byte, expectedVersion string) (string, error) {
	if data == nil {
		return "", fmt.Errorf("%w: keychain data cannot be nil", errs.ErrInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", fmt.Errorf("%w: store is closed", errs.ErrStorage)
	}
	if expectedVersion != "" && expectedVersion != m.version {
		return "", ConcurrencyError{
			ExpectedVersion: expectedVersion,
			ActualVersion:   m.version,
			Operation:       "Save",
		}
	}

	m.data = append([]byte(nil), data...)
	m.version = calculateVersion(data)
	m.saved = time.Now()
	return m.version, nil
}

func (m *MemoryStore) Load() (*VersionedData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.data == nil {
		return nil, fmt.Errorf("%w: memory store is empty", errs.ErrNotFound)
	}

	return &VersionedData{
		Data:      append([]byte(nil), m.data...),
		Version:   m.version,
		Timestamp: m.saved,
	}, nil
}

func (m *MemoryStore) Exists() (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data != nil, nil
}

func (m *MemoryStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.data {
		m.data[i] = 0
	}
	m.data = nil
	m.version = ""
	return nil
}

func (m *MemoryStore) Ping() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("%w: store is closed", errs.ErrStorage)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStore) GetType() string {
	return string(StoreTypeMemory)
}
