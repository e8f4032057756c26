package keychain

import (
	"fmt"

	"github.com/project-imas/securefoundation/errs"
	"github.com/project-imas/securefoundation/internal/misc"
)

// Records is the only write path into the reserved service that holds the
// wrapped key records. A keychain hands out a single Records, normally to
// the crypto manager; the general API refuses the reserved service.
type Records struct {
	k *Keychain
}

// ClaimRecords returns the keychain's Records. It fails with
// errs.ErrConfiguration if they were already claimed.
func (k *Keychain) ClaimRecords() (*Records, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.claimed {
		return nil, fmt.Errorf("%w: wrapped key records already claimed", errs.ErrConfiguration)
	}
	k.claimed = true
	return &Records{k: k}, nil
}

// Plain reads a plain-partition value.
func (r *Records) Plain(service, account string) ([]byte, error) {
	return r.k.Plain(service, account)
}

// SetPlainItems writes reserved records atomically and durably, like
// Keychain.SetPlainItems. Every item must belong to the reserved service.
func (r *Records) SetPlainItems(items ...Item) error {
	for _, item := range items {
		if err := validateName(item.Service, item.Account); err != nil {
			return err
		}
		if !misc.IsReservedService(item.Service) {
			return fmt.Errorf("%w: %s is not a reserved service", errs.ErrInput, item.Service)
		}
	}
	return r.k.setPlainItems(items)
}
