package persist

import (
	"fmt"
	"strings"

	"github.com/project-imas/securefoundation/internal/crypto"
)

// NewStore builds the Store described by config.
func NewStore(config StoreConfig) (Store, error) {
	switch config.Type {
	case StoreTypeFileSystem, "":
		basePath, ok := config.Config["base_path"].(string)
		if !ok {
			return nil, fmt.Errorf("filesystem storage requires 'base_path' in config")
		}
		return NewFileSystemStore(basePath)

	case StoreTypeMemory:
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

func validateBasePath(basePath string) error {
	if strings.TrimSpace(basePath) == "" {
		return fmt.Errorf("base path cannot be empty")
	}
	if strings.ContainsAny(basePath, "\x00") {
		return fmt.Errorf("base path contains invalid characters")
	}
	if len(basePath) > 4096 {
		return fmt.Errorf("base path too long (max 4096 characters)")
	}
	return nil
}

func calculateVersion(data []byte) string {
	return fmt.Sprintf("%x", crypto.HashMD5(data))
}
