// Package keychain is a file-backed stand-in for a platform keychain.
//
// Values are addressed by (service, account) and live in one of two
// partitions. The plain partition is always readable. The secure partition
// holds ciphertext produced by a bound Cipher, normally the crypto manager,
// and is unusable while that cipher is locked or absent.
//
// The crypto manager's reserved service is read-only here; its records are
// written through Records.
//
// Mutations change the in-memory document. Synchronize writes the whole
// document to the backing persist.Store in one atomic replace; with AutoSync
// every mutation does so before returning.
package keychain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/project-imas/securefoundation/audit"
	"github.com/project-imas/securefoundation/errs"
	"github.com/project-imas/securefoundation/internal/codec"
	"github.com/project-imas/securefoundation/internal/misc"
	"github.com/project-imas/securefoundation/persist"
)

// AllServices is the wildcard accepted by ListAccounts.
const AllServices = ""

// Cipher encrypts secure-partition values. It reports errs.ErrLocked when it
// cannot currently operate.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Item is one plain-partition value in a SetPlainItems batch.
type Item struct {
	Service string
	Account string
	Value   []byte
}

// Account identifies a stored value.
type Account struct {
	Service string
	Account string
	Secure  bool
}

type partition map[string]map[string][]byte

// document is the persisted shape of the keychain.
type document struct {
	Plain  partition `plist:"plain"`
	Secure partition `plist:"secure"`
}

type Keychain struct {
	mu       sync.RWMutex
	store    persist.Store
	codec    codec.Codec
	doc      document
	version  string
	dirty    bool
	cipher   Cipher
	autoSync bool
	audit    audit.Logger
	claimed  bool // Records handed out
}

// Option configures a Keychain.
type Option func(*Keychain)

// WithAutoSync makes every mutation synchronize before it returns.
func WithAutoSync(enabled bool) Option {
	return func(k *Keychain) { k.autoSync = enabled }
}

func WithCodec(c codec.Codec) Option {
	return func(k *Keychain) { k.codec = c }
}

func WithAuditLogger(logger audit.Logger) Option {
	return func(k *Keychain) { k.audit = logger }
}

// WithCipher binds the secure partition cipher at construction.
func WithCipher(c Cipher) Option {
	return func(k *Keychain) { k.cipher = c }
}

// New opens the keychain held by store. A store with no artifact yields an
// empty keychain; nothing is written until the first synchronize.
func New(store persist.Store, opts ...Option) (*Keychain, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: keychain requires a store", errs.ErrConfiguration)
	}

	k := &Keychain{
		store: store,
		codec: codec.Default,
		doc:   newDocument(),
		audit: audit.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(k)
	}

	if err := k.load(); err != nil {
		return nil, err
	}
	return k, nil
}

func newDocument() document {
	return document{Plain: partition{}, Secure: partition{}}
}

func (k *Keychain) load() error {
	data, err := k.store.Load()
	if misc.IsNotFoundError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load keychain: %w", err)
	}

	doc := newDocument()
	if err = k.codec.Unmarshal(data.Data, &doc); err != nil {
		return fmt.Errorf("%w: keychain artifact is unreadable: %v", errs.ErrStorage, err)
	}
	if doc.Plain == nil {
		doc.Plain = partition{}
	}
	if doc.Secure == nil {
		doc.Secure = partition{}
	}

	k.doc = doc
	k.version = data.Version
	return nil
}

// SetCipher binds or replaces the cipher used by the secure partition. A nil
// cipher makes secure access fail with errs.ErrLocked.
func (k *Keychain) SetCipher(c Cipher) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cipher = c
}

// ListAccounts returns every stored (service, account) pair for service, or
// for all services when service is AllServices, sorted by service then account.
func (k *Keychain) ListAccounts(service string) []Account {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var accounts []Account
	collect := func(p partition, secure bool) {
		for svc, entries := range p {
			if service != AllServices && svc != service {
				continue
			}
			for account := range entries {
				accounts = append(accounts, Account{Service: svc, Account: account, Secure: secure})
			}
		}
	}
	collect(k.doc.Plain, false)
	collect(k.doc.Secure, true)

	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Service != accounts[j].Service {
			return accounts[i].Service < accounts[j].Service
		}
		if accounts[i].Account != accounts[j].Account {
			return accounts[i].Account < accounts[j].Account
		}
		return !accounts[i].Secure
	})
	return accounts
}

// SetPlain stores value in the clear.
func (k *Keychain) SetPlain(service, account string, value []byte) error {
	if err := checkName(service, account); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	_, err := k.apply(k.doc.Plain, service, account, value, false)
	return err
}

// Plain returns a copy of a plain-partition value.
func (k *Keychain) Plain(service, account string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	value, ok := k.doc.Plain.get(service, account)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", errs.ErrNotFound, service, account)
	}
	return value, nil
}

// DeletePlain removes a plain-partition value. Deleting a missing value is a no-op.
func (k *Keychain) DeletePlain(service, account string) error {
	if misc.IsReservedService(service) {
		return errs.ErrReservedService
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	_, err := k.apply(k.doc.Plain, service, account, nil, true)
	return err
}

// SetPlainItems writes a batch of plain values and synchronizes immediately.
// If the write fails the in-memory keychain is rolled back, so either every
// item is stored durably or none is.
func (k *Keychain) SetPlainItems(items ...Item) error {
	for _, item := range items {
		if err := checkName(item.Service, item.Account); err != nil {
			return err
		}
	}
	return k.setPlainItems(items)
}

func (k *Keychain) setPlainItems(items []Item) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	type previous struct {
		value  []byte
		exists bool
	}
	prior := make([]previous, len(items))
	for i, item := range items {
		prior[i].value, prior[i].exists = k.doc.Plain.get(item.Service, item.Account)
		k.doc.Plain.set(item.Service, item.Account, item.Value)
	}
	wasDirty := k.dirty
	k.dirty = true

	if err := k.sync(); err != nil {
		for i := len(items) - 1; i >= 0; i-- {
			k.doc.Plain.restore(items[i].Service, items[i].Account, prior[i].value, prior[i].exists)
		}
		k.dirty = wasDirty
		return err
	}
	for _, p := range prior {
		memguard.WipeBytes(p.value)
	}
	return nil
}

// SetSecure encrypts value with the bound cipher and stores the ciphertext.
// A failed encryption leaves any previous value untouched.
func (k *Keychain) SetSecure(service, account string, value []byte) error {
	if err := checkName(service, account); err != nil {
		return err
	}

	// the cipher runs outside k.mu; it takes locks of its own
	sealed, err := k.seal(value)
	if err != nil {
		k.record(audit.ActionSecureWrite, service, account, err)
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	_, err = k.apply(k.doc.Secure, service, account, sealed, false)
	k.record(audit.ActionSecureWrite, service, account, err)
	return err
}

// Secure decrypts and returns a secure-partition value.
func (k *Keychain) Secure(service, account string) ([]byte, error) {
	k.mu.RLock()
	sealed, ok := k.doc.Secure.get(service, account)
	c := k.cipher
	k.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("%w: %s/%s", errs.ErrNotFound, service, account)
		k.record(audit.ActionSecureRead, service, account, err)
		return nil, err
	}
	if c == nil {
		k.record(audit.ActionSecureRead, service, account, errs.ErrLocked)
		return nil, errs.ErrLocked
	}

	value, err := c.Decrypt(sealed)
	k.record(audit.ActionSecureRead, service, account, err)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// DeleteSecure removes a secure-partition value. It needs no cipher.
func (k *Keychain) DeleteSecure(service, account string) error {
	if misc.IsReservedService(service) {
		return errs.ErrReservedService
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	changed, err := k.apply(k.doc.Secure, service, account, nil, true)
	if changed || err != nil {
		k.record(audit.ActionSecureDelete, service, account, err)
	}
	return err
}

// apply sets or removes one value in p and, with AutoSync, writes it
// through. A failed write restores the previous value, so an error means the
// keychain is unchanged. Caller holds k.mu.
func (k *Keychain) apply(p partition, service, account string, value []byte, remove bool) (bool, error) {
	prev, existed := p.get(service, account)
	if remove {
		if !existed {
			return false, nil
		}
		p.remove(service, account)
	} else {
		p.set(service, account, value)
	}

	wasDirty := k.dirty
	k.dirty = true
	if err := k.maybeSync(); err != nil {
		p.restore(service, account, prev, existed)
		k.dirty = wasDirty
		return false, err
	}
	memguard.WipeBytes(prev)
	return true, nil
}

// Synchronize writes the keychain to its store and blocks until the write
// has completed. It is a no-op when nothing changed since the last write.
func (k *Keychain) Synchronize() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.sync()
}

// Dirty reports whether there are changes not yet synchronized.
func (k *Keychain) Dirty() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.dirty
}

// Destroy shreds the backing artifact and empties the keychain.
func (k *Keychain) Destroy() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.store.Delete(); err != nil {
		return err
	}
	k.doc.wipe()
	k.doc = newDocument()
	k.version = ""
	k.dirty = false
	return nil
}

// Close synchronizes pending changes and releases the store.
func (k *Keychain) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	syncErr := k.sync()
	if err := k.store.Close(); err != nil && syncErr == nil {
		return err
	}
	return syncErr
}

func (k *Keychain) seal(value []byte) ([]byte, error) {
	k.mu.RLock()
	c := k.cipher
	k.mu.RUnlock()

	if c == nil {
		return nil, errs.ErrLocked
	}
	return c.Encrypt(value)
}

// sync writes the document. Caller holds k.mu.
func (k *Keychain) sync() error {
	if !k.dirty {
		return nil
	}

	data, err := k.codec.Marshal(k.doc)
	if err != nil {
		return fmt.Errorf("%w: failed to encode keychain: %v", errs.ErrStorage, err)
	}
	defer memguard.WipeBytes(data)

	version, err := k.store.Save(data, k.version)
	if err != nil {
		return fmt.Errorf("failed to synchronize keychain: %w", err)
	}

	k.version = version
	k.dirty = false
	return nil
}

func (k *Keychain) maybeSync() error {
	if !k.autoSync {
		return nil
	}
	return k.sync()
}

func (k *Keychain) record(action, service, account string, err error) {
	metadata := map[string]interface{}{
		"service": service,
		"account": account,
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	_ = k.audit.Log(action, err == nil, metadata)
}

func validateName(service, account string) error {
	if service == "" || account == "" {
		return fmt.Errorf("%w: service and account are required", errs.ErrInput)
	}
	return nil
}

// checkName validates a name for the general write API, which may not touch
// the reserved service.
func checkName(service, account string) error {
	if err := validateName(service, account); err != nil {
		return err
	}
	if misc.IsReservedService(service) {
		return errs.ErrReservedService
	}
	return nil
}

func (p partition) get(service, account string) ([]byte, bool) {
	value, ok := p[service][account]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

func (p partition) set(service, account string, value []byte) {
	entries, ok := p[service]
	if !ok {
		entries = map[string][]byte{}
		p[service] = entries
	}
	if old, ok := entries[account]; ok {
		memguard.WipeBytes(old)
	}
	if value == nil {
		value = []byte{}
	}
	entries[account] = append([]byte(nil), value...)
}

func (p partition) remove(service, account string) bool {
	entries, ok := p[service]
	if !ok {
		return false
	}
	old, ok := entries[account]
	if !ok {
		return false
	}
	memguard.WipeBytes(old)
	delete(entries, account)
	if len(entries) == 0 {
		delete(p, service)
	}
	return true
}

// restore puts back a value captured by get before a failed write.
func (p partition) restore(service, account string, value []byte, existed bool) {
	if existed {
		p.set(service, account, value)
		memguard.WipeBytes(value)
		return
	}
	p.remove(service, account)
}

func (d document) wipe() {
	for _, p := range []partition{d.Plain, d.Secure} {
		for _, entries := range p {
			for _, v := range entries {
				memguard.WipeBytes(v)
			}
		}
	}
}
