package securefoundation

import (
	"fmt"
	"strings"

	"github.com/project-imas/securefoundation/audit"
	"github.com/project-imas/securefoundation/errs"
	"github.com/project-imas/securefoundation/internal/misc"
	"github.com/project-imas/securefoundation/persist"
)

// Options configures Open.
//
// DataDir is the application sandbox directory; the keychain artifact is
// created inside it with owner-only permissions, so removing the directory
// removes every secret. KeySize picks AES-128 (16) or AES-256 (32) for the
// master key and the factor keys, and must stay the same for the lifetime of
// a DataDir: records wrapped under one size cannot be opened under the other.
//
// EnableMemoryLock asks the OS to keep the whole process out of swap. When the
// platform refuses, Open continues with memguard's per-key protection and
// MemoryProtection reports "partial".
//
// AutoSync writes the keychain after every mutation. Without it the host
// calls Synchronize, or relies on Close. Wrapped key records are always
// written immediately.
type Options struct {
	DataDir          string            `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	Store            persist.StoreType `json:"store" yaml:"store" mapstructure:"store"`
	KeySize          int               `json:"key_size" yaml:"key_size" mapstructure:"key_size"`
	EnableMemoryLock bool              `json:"enable_memory_lock" yaml:"enable_memory_lock" mapstructure:"enable_memory_lock"`
	AutoSync         bool              `json:"auto_sync" yaml:"auto_sync" mapstructure:"auto_sync"`
	Audit            *audit.Config     `json:"audit,omitempty" yaml:"audit,omitempty" mapstructure:"audit"`
	UserID           string            `json:"-" yaml:"-" mapstructure:"user_id"`
}

// Validate fills defaults and rejects unusable settings.
func (o *Options) Validate() error {
	if o.Store == "" {
		o.Store = persist.StoreTypeFileSystem
	}
	if o.KeySize == 0 {
		o.KeySize = misc.DefaultKeySize
	}

	switch o.Store {
	case persist.StoreTypeFileSystem:
		if strings.TrimSpace(o.DataDir) == "" {
			return fmt.Errorf("%w: data directory is required", errs.ErrConfiguration)
		}
	case persist.StoreTypeMemory:
	default:
		return fmt.Errorf("%w: unsupported store type %q", errs.ErrConfiguration, o.Store)
	}

	if o.KeySize != 16 && o.KeySize != 32 {
		return fmt.Errorf("%w: key size must be 16 or 32 bytes, got %d", errs.ErrConfiguration, o.KeySize)
	}

	if o.Audit != nil && o.Audit.Enabled && o.Audit.Type == audit.FileAuditType {
		if path, _ := o.Audit.Options["file_path"].(string); path == "" {
			return fmt.Errorf("%w: audit file_path is required", errs.ErrConfiguration)
		}
	}

	return nil
}
