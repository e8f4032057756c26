package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/project-imas/securefoundation/errs"
	"github.com/project-imas/securefoundation/internal/debug"
	"github.com/project-imas/securefoundation/internal/misc"
	"github.com/project-imas/securefoundation/shred"
)

// FileSystemStore keeps the keychain in a single file inside the
// application's data directory.
type FileSystemStore struct {
	mu       sync.Mutex
	basePath string
	path     string // basePath/keychain.plist
}

// NewFileSystemStore prepares basePath (mode 0700) but does not touch the
// artifact itself.
func NewFileSystemStore(basePath string) (*FileSystemStore, error) {
	if err := validateBasePath(basePath); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfiguration, err)
	}

	if err := os.MkdirAll(basePath, misc.DirPermissions); err != nil {
		return nil, fmt.Errorf("%w: failed to create data directory: %v", errs.ErrStorage, err)
	}

	return &FileSystemStore{
		basePath: basePath,
		path:     filepath.Join(basePath, misc.KeychainFileName),
	}, nil
}

// Path is the location of the keychain artifact.
func (fs *FileSystemStore) Path() string {
	return fs.path
}

// Save with optimistic concurrency control
func (fs *FileSystemStore) Save(data []byte, expectedVersion string) (string, error) {
	if data == nil {
		return "", fmt.Errorf("%w: keychain data cannot be nil", errs.ErrInput)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if expectedVersion != "" {
		currentVersion, err := fs.currentVersion()
		if err != nil {
			return "", fmt.Errorf("%w: failed to check current version: %v", errs.ErrStorage, err)
		}
		if currentVersion != expectedVersion {
			return "", ConcurrencyError{
				ExpectedVersion: expectedVersion,
				ActualVersion:   currentVersion,
				Operation:       "Save",
			}
		}
	}

	if err := writeSecureFile(fs.path, data, misc.FilePermissions); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}

	version := calculateVersion(data)
	debug.Print("keychain saved: %d bytes, version %s\n", len(data), version)
	return version, nil
}

// Load returns the artifact and its content version.
func (fs *FileSystemStore) Load() (*VersionedData, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	info, err := os.Stat(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, fs.path)
		}
		return nil, fmt.Errorf("%w: failed to stat keychain: %v", errs.ErrStorage, err)
	}

	data, err := os.ReadFile(fs.path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load keychain: %v", errs.ErrStorage, err)
	}

	return &VersionedData{
		Data:      data,
		Version:   calculateVersion(data),
		Timestamp: info.ModTime(),
	}, nil
}

func (fs *FileSystemStore) Exists() (bool, error) {
	return fileExists(fs.path)
}

// Delete shreds the artifact before unlinking it. A missing artifact is not
// an error.
func (fs *FileSystemStore) Delete() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	exists, err := fileExists(fs.path)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if !exists {
		return nil
	}

	return shred.Remove(fs.path, shred.DefaultPassSize, shred.DefaultPasses, true)
}

func (fs *FileSystemStore) GetType() string {
	return string(StoreTypeFileSystem)
}

func (fs *FileSystemStore) Ping() error {
	info, err := os.Stat(fs.basePath)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", errs.ErrStorage, fs.basePath)
	}
	return nil
}

func (fs *FileSystemStore) Close() error {
	return nil
}

// currentVersion is empty when the artifact does not exist yet.
func (fs *FileSystemStore) currentVersion() (string, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return calculateVersion(data), nil
}

// writeSecureFile replaces path atomically: temp file in the same
// directory, fsync, chmod, rename.
func writeSecureFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err = tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err = tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err = tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
