package securefoundation

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/project-imas/securefoundation/audit"
	"github.com/project-imas/securefoundation/internal/mem"
	"github.com/project-imas/securefoundation/keychain"
	"github.com/project-imas/securefoundation/persist"
	"github.com/project-imas/securefoundation/shred"
)

func init() {
	memguard.CatchInterrupt()
}

// Foundation bundles a crypto manager with the keychain it guards. The
// manager is bound as the keychain's secure-partition cipher, so secure
// items are readable exactly while the manager is Unlocked.
type Foundation struct {
	Manager  *CryptoManager
	Keychain *keychain.Keychain
	Shredder *shred.Shredder

	audit      audit.Logger
	protection mem.ProtectionLevel
	closeOnce  sync.Once
	closeErr   error
}

// Open wires store, keychain and manager for options. The manager starts
// Locked.
func Open(options Options) (*Foundation, error) {
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	auditLogger, err := audit.NewLogger(options.Audit)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}

	store, err := persist.NewStore(persist.StoreConfig{
		Type:   options.Store,
		Config: map[string]interface{}{"base_path": options.DataDir},
	})
	if err != nil {
		_ = auditLogger.Close()
		return nil, fmt.Errorf("failed to open keychain store: %w", err)
	}

	kc, err := keychain.New(store,
		keychain.WithAutoSync(options.AutoSync),
		keychain.WithAuditLogger(auditLogger),
	)
	if err != nil {
		_ = store.Close()
		_ = auditLogger.Close()
		return nil, err
	}

	records, err := kc.ClaimRecords()
	if err != nil {
		_ = kc.Close()
		_ = auditLogger.Close()
		return nil, err
	}

	manager, err := NewCryptoManager(records,
		WithKeySize(options.KeySize),
		WithAuditLogger(auditLogger),
		WithUserID(options.UserID),
	)
	if err != nil {
		_ = kc.Close()
		_ = auditLogger.Close()
		return nil, err
	}
	kc.SetCipher(manager.Cipher())

	f := &Foundation{
		Manager:    manager,
		Keychain:   kc,
		Shredder:   shred.New(shred.WithAuditLogger(auditLogger)),
		audit:      auditLogger,
		protection: mem.ProtectionNone,
	}

	if options.EnableMemoryLock {
		level, err := mem.Lock()
		if err != nil {
			log.Printf("WARNING: cannot fully protect memory: %v", err)
		}
		f.protection = level
	}

	return f, nil
}

// MemoryProtection is "none", "partial" or "full".
func (f *Foundation) MemoryProtection() string {
	return f.protection.String()
}

// Audit returns the logger shared by every component.
func (f *Foundation) Audit() audit.Logger {
	return f.audit
}

// Close purges the master key, writes pending keychain changes and releases
// the audit log. Further calls return the first result.
func (f *Foundation) Close() error {
	f.closeOnce.Do(func() {
		f.Manager.Purge()

		var errList []error
		if err := f.Keychain.Close(); err != nil {
			errList = append(errList, err)
		}
		if f.protection == mem.ProtectionFull {
			if err := mem.Unlock(); err != nil {
				errList = append(errList, err)
			}
		}
		if err := f.audit.Close(); err != nil {
			errList = append(errList, err)
		}
		f.closeErr = errors.Join(errList...)
	})
	return f.closeErr
}

// Destroy purges the master key and shreds the keychain artifact, wrapped
// key records included. Everything encrypted under the old key becomes
// unrecoverable.
func (f *Foundation) Destroy() error {
	f.Manager.Purge()
	return f.Keychain.Destroy()
}
