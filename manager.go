package securefoundation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/project-imas/securefoundation/audit"
	"github.com/project-imas/securefoundation/errs"
	"github.com/project-imas/securefoundation/internal/codec"
	"github.com/project-imas/securefoundation/internal/crypto"
	"github.com/project-imas/securefoundation/internal/debug"
	"github.com/project-imas/securefoundation/internal/misc"
	"github.com/project-imas/securefoundation/keychain"
)

// Primitives is the cryptographic toolkit the manager is built on.
// internal/crypto.Suite is the production implementation.
type Primitives interface {
	RandomBytes(n int) ([]byte, error)
	DeriveKey(secret []byte, length int, salt []byte) ([]byte, error)
	Encrypt(plaintext, key []byte) ([]byte, error)
	Decrypt(envelope, key []byte) ([]byte, error)
}

// RecordStore holds the wrapped key records. *keychain.Records satisfies it.
type RecordStore interface {
	// Plain returns an error wrapping errs.ErrNotFound for a missing record.
	Plain(service, account string) ([]byte, error)

	// SetPlainItems stores every item durably, or none of them.
	SetPlainItems(items ...keychain.Item) error
}

// LockState is Locked or Unlocked.
type LockState int

const (
	Locked LockState = iota
	Unlocked
)

func (s LockState) String() string {
	if s == Unlocked {
		return "unlocked"
	}
	return "locked"
}

// wrappedKeyRecord is the persisted form of one unlock factor.
type wrappedKeyRecord struct {
	Key  []byte `plist:"key"`
	Salt []byte `plist:"salt"`
}

// stagedInput holds factor material between the StoreTemporary calls and Finalize.
type stagedInput struct {
	passcode  []byte
	questions []string
	answers   []byte
}

func (s *stagedInput) empty() bool {
	return s == nil || (s.passcode == nil && s.answers == nil)
}

func (s *stagedInput) wipe() {
	if s == nil {
		return
	}
	memguard.WipeBytes(s.passcode)
	memguard.WipeBytes(s.answers)
	s.passcode = nil
	s.answers = nil
	s.questions = nil
}

// CryptoManager owns the master key. It starts Locked; the key is never kept
// across process restarts and is only ever persisted wrapped by a factor key.
//
// mu serializes every operation on the lock state, the master key and the
// staged input. persistMu serializes Finalize and the Update calls so that
// only one writer rewraps the key at a time; store writes happen with mu
// released.
type CryptoManager struct {
	mu        sync.Mutex
	persistMu sync.Mutex

	records RecordStore
	prims   Primitives
	codec   codec.Codec
	keySize int
	audit   audit.Logger
	userID  string

	masterKey *memguard.Enclave
	staged    *stagedInput
}

// ManagerOption configures a CryptoManager.
type ManagerOption func(*CryptoManager)

func WithPrimitives(p Primitives) ManagerOption {
	return func(m *CryptoManager) { m.prims = p }
}

func WithAuditLogger(logger audit.Logger) ManagerOption {
	return func(m *CryptoManager) { m.audit = logger }
}

// WithKeySize sets the master and factor key length: 16, 24 or 32 bytes. It
// must not change once records exist.
func WithKeySize(size int) ManagerOption {
	return func(m *CryptoManager) { m.keySize = size }
}

func WithUserID(userID string) ManagerOption {
	return func(m *CryptoManager) { m.userID = userID }
}

// NewCryptoManager builds a Locked manager over records. It performs no I/O.
func NewCryptoManager(records RecordStore, opts ...ManagerOption) (*CryptoManager, error) {
	if records == nil {
		return nil, fmt.Errorf("%w: record store is required", errs.ErrConfiguration)
	}

	m := &CryptoManager{
		records: records,
		prims:   crypto.Suite{},
		codec:   codec.Default,
		keySize: misc.DefaultKeySize,
		audit:   audit.NewNoOpLogger(),
		userID:  "system",
	}
	for _, opt := range opts {
		opt(m)
	}

	switch m.keySize {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d bytes", errs.ErrKeyLength, m.keySize)
	}
	if m.prims == nil {
		return nil, fmt.Errorf("%w: primitives are required", errs.ErrConfiguration)
	}
	if m.audit == nil {
		m.audit = audit.NewNoOpLogger()
	}

	return m, nil
}

// StoreTemporaryPasscode stages code for the next Finalize, replacing any
// previously staged passcode.
func (m *CryptoManager) StoreTemporaryPasscode(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.staged == nil {
		m.staged = &stagedInput{}
	}
	memguard.WipeBytes(m.staged.passcode)
	m.staged.passcode = []byte(code)
}

// StoreTemporarySecurityQA stages questions and their answers for the next
// Finalize. The lists must have the same, non-zero length.
func (m *CryptoManager) StoreTemporarySecurityQA(questions, answers []string) error {
	if err := checkQA(questions, answers); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.staged == nil {
		m.staged = &stagedInput{}
	}
	memguard.WipeBytes(m.staged.answers)
	m.staged.questions = append([]string(nil), questions...)
	m.staged.answers = answerMaterial(answers)
	return nil
}

// Finalize wraps the master key under every staged factor and persists the
// records in one atomic keychain write. A master key is generated only when
// no records exist yet; while Unlocked the live key is rewrapped instead. The
// lock state is left unchanged: a freshly generated key is discarded and the
// caller must unlock.
//
// Finalize fails with errs.ErrNothingStaged when nothing was staged, and with
// errs.ErrLocked when records already exist but the manager is Locked, since
// a new key would orphan everything encrypted under the old one. On success
// the staged input is cleared; on failure it is kept for a retry.
func (m *CryptoManager) Finalize() error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	configured := m.HasPasscode() || m.HasSecurityQA()

	m.mu.Lock()
	if m.staged.empty() {
		m.mu.Unlock()
		return errs.ErrNothingStaged
	}

	var (
		key       []byte
		generated bool
		err       error
	)
	switch {
	case m.masterKey != nil:
		key, err = m.openMasterKey()
	case configured:
		err = errs.ErrLocked
	default:
		key, err = m.prims.RandomBytes(m.keySize)
		generated = true
	}
	if err != nil {
		m.mu.Unlock()
		m.logFinalize(nil, generated, err)
		return err
	}

	staged := m.staged
	m.staged = nil
	m.mu.Unlock()

	defer memguard.WipeBytes(key)

	items, err := m.wrapStaged(key, staged)
	if err == nil {
		err = m.records.SetPlainItems(items...)
	}
	if err != nil {
		m.logFinalize(staged, generated, err)
		m.restoreStaged(staged)
		return fmt.Errorf("failed to finalize credentials: %w", err)
	}

	m.logFinalize(staged, generated, nil)
	staged.wipe()
	debug.Print("finalize: wrapped master key (generated=%t)\n", generated)
	return nil
}

func (m *CryptoManager) wrapStaged(key []byte, staged *stagedInput) ([]keychain.Item, error) {
	var items []keychain.Item

	if staged.passcode != nil {
		record, err := m.wrap(key, staged.passcode)
		if err != nil {
			return nil, err
		}
		items = append(items, keychain.Item{Service: misc.CryptoService, Account: misc.PasscodeAccount, Value: record})
	}

	if staged.answers != nil {
		qaItems, err := m.wrapQA(key, staged.questions, staged.answers)
		if err != nil {
			return nil, err
		}
		items = append(items, qaItems...)
	}

	return items, nil
}

// restoreStaged puts input back after a failed Finalize unless the caller
// staged something newer in the meantime.
func (m *CryptoManager) restoreStaged(staged *stagedInput) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.staged == nil {
		m.staged = staged
		return
	}
	staged.wipe()
}

// UnlockWithPasscode unwraps the master key with code. Every failure is
// reported as errs.ErrInvalidCredential and leaves the manager Locked.
func (m *CryptoManager) UnlockWithPasscode(code string) error {
	secret := []byte(code)
	defer memguard.WipeBytes(secret)

	return m.unlock(audit.ActionUnlockPasscode, misc.PasscodeAccount, secret)
}

// UnlockWithSecurityAnswers unwraps the master key with answers, which must
// be given in the order of SecurityQuestions.
func (m *CryptoManager) UnlockWithSecurityAnswers(answers []string) error {
	questions := m.SecurityQuestions()
	if len(questions) == 0 || len(answers) != len(questions) {
		m.logUnlock(audit.ActionUnlockAnswers, false)
		return errs.ErrInvalidCredential
	}

	secret := answerMaterial(answers)
	defer memguard.WipeBytes(secret)

	return m.unlock(audit.ActionUnlockAnswers, misc.AnswersAccount, secret)
}

func (m *CryptoManager) unlock(action, account string, secret []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.unwrap(account, secret)
	if err != nil {
		debug.Print("unlock %s failed: %v\n", account, err)
		m.logUnlock(action, false)
		return errs.ErrInvalidCredential
	}

	// NewEnclave wipes key
	m.masterKey = memguard.NewEnclave(key)
	m.logUnlock(action, true)
	return nil
}

// Purge discards the in-memory master key. It is always safe to call.
func (m *CryptoManager) Purge() {
	m.mu.Lock()
	wasUnlocked := m.masterKey != nil
	m.masterKey = nil
	m.mu.Unlock()

	_ = m.audit.Log(audit.ActionPurge, true, map[string]interface{}{
		"was_unlocked": wasUnlocked,
	})
}

// UpdatePasscode replaces the passcode record with one wrapping the live
// master key under newCode. It fails with errs.ErrLocked, changing nothing,
// when the manager is Locked.
func (m *CryptoManager) UpdatePasscode(newCode string) error {
	secret := []byte(newCode)
	defer memguard.WipeBytes(secret)

	err := m.rewrap(func(key []byte) ([]keychain.Item, error) {
		record, err := m.wrap(key, secret)
		if err != nil {
			return nil, err
		}
		return []keychain.Item{{Service: misc.CryptoService, Account: misc.PasscodeAccount, Value: record}}, nil
	})

	m.logUpdate(audit.ActionUpdatePasscode, err)
	return err
}

// UpdateSecurityQA replaces the questions and the answers record. Like
// UpdatePasscode it needs the manager Unlocked.
func (m *CryptoManager) UpdateSecurityQA(questions, answers []string) error {
	if err := checkQA(questions, answers); err != nil {
		m.logUpdate(audit.ActionUpdateSecurityQA, err)
		return err
	}

	secret := answerMaterial(answers)
	defer memguard.WipeBytes(secret)

	err := m.rewrap(func(key []byte) ([]keychain.Item, error) {
		return m.wrapQA(key, questions, secret)
	})

	m.logUpdate(audit.ActionUpdateSecurityQA, err)
	return err
}

// rewrap copies the live key under mu, builds the replacement records and
// persists them with mu released.
func (m *CryptoManager) rewrap(build func(key []byte) ([]keychain.Item, error)) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	if m.masterKey == nil {
		m.mu.Unlock()
		return errs.ErrLocked
	}
	key, err := m.openMasterKey()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(key)

	items, err := build(key)
	if err != nil {
		return err
	}
	return m.records.SetPlainItems(items...)
}

// Encrypt seals data under the master key, or fails with errs.ErrLocked.
func (m *CryptoManager) Encrypt(data []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.masterKey == nil {
		return nil, errs.ErrLocked
	}

	buf, err := m.masterKey.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open master key: %w", err)
	}
	defer buf.Destroy()

	return m.prims.Encrypt(data, buf.Bytes())
}

// Decrypt opens data sealed by Encrypt, or fails with errs.ErrLocked.
func (m *CryptoManager) Decrypt(data []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.masterKey == nil {
		return nil, errs.ErrLocked
	}

	buf, err := m.masterKey.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open master key: %w", err)
	}
	defer buf.Destroy()

	return m.prims.Decrypt(data, buf.Bytes())
}

func (m *CryptoManager) IsLocked() bool {
	return m.State() == Locked
}

func (m *CryptoManager) State() LockState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.masterKey == nil {
		return Locked
	}
	return Unlocked
}

// HasPasscode reports whether a passcode record is stored.
func (m *CryptoManager) HasPasscode() bool {
	_, err := m.records.Plain(misc.CryptoService, misc.PasscodeAccount)
	return err == nil
}

// HasSecurityQA reports whether an answers record is stored.
func (m *CryptoManager) HasSecurityQA() bool {
	_, err := m.records.Plain(misc.CryptoService, misc.AnswersAccount)
	return err == nil
}

// SecurityQuestions returns the stored questions, or an empty list.
func (m *CryptoManager) SecurityQuestions() []string {
	data, err := m.records.Plain(misc.CryptoService, misc.QuestionsAccount)
	if err != nil {
		return []string{}
	}

	var questions []string
	if err = m.codec.Unmarshal(data, &questions); err != nil {
		return []string{}
	}
	return questions
}

// Cipher exposes the manager's encrypt/decrypt pair to the keychain's secure
// partition.
func (m *CryptoManager) Cipher() keychain.Cipher {
	return m
}

// openMasterKey copies the live key out of its enclave. Caller holds mu.
func (m *CryptoManager) openMasterKey() ([]byte, error) {
	buf, err := m.masterKey.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open master key: %w", err)
	}
	defer buf.Destroy()

	return append([]byte(nil), buf.Bytes()...), nil
}

// wrap derives a factor key from secret and a fresh salt and seals key with it.
func (m *CryptoManager) wrap(key, secret []byte) ([]byte, error) {
	salt, err := m.prims.RandomBytes(misc.SaltSize)
	if err != nil {
		return nil, err
	}

	factorKey, err := m.prims.DeriveKey(secret, m.keySize, salt)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(factorKey)

	wrapped, err := m.prims.Encrypt(key, factorKey)
	if err != nil {
		return nil, err
	}

	return m.codec.Marshal(wrappedKeyRecord{Key: wrapped, Salt: salt})
}

func (m *CryptoManager) wrapQA(key []byte, questions []string, answers []byte) ([]keychain.Item, error) {
	record, err := m.wrap(key, answers)
	if err != nil {
		return nil, err
	}

	encoded, err := m.codec.Marshal(questions)
	if err != nil {
		return nil, err
	}

	return []keychain.Item{
		{Service: misc.CryptoService, Account: misc.AnswersAccount, Value: record},
		{Service: misc.CryptoService, Account: misc.QuestionsAccount, Value: encoded},
	}, nil
}

// unwrap reverses wrap for the record stored under account.
func (m *CryptoManager) unwrap(account string, secret []byte) ([]byte, error) {
	data, err := m.records.Plain(misc.CryptoService, account)
	if err != nil {
		return nil, err
	}

	var record wrappedKeyRecord
	if err = m.codec.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	if len(record.Salt) == 0 || len(record.Key) == 0 {
		return nil, errors.New("incomplete wrapped key record")
	}

	factorKey, err := m.prims.DeriveKey(secret, m.keySize, record.Salt)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(factorKey)

	key, err := m.prims.Decrypt(record.Key, factorKey)
	if err != nil {
		return nil, err
	}

	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		memguard.WipeBytes(key)
		return nil, errs.ErrKeyLength
	}
}

func (m *CryptoManager) logUnlock(action string, success bool) {
	metadata := map[string]interface{}{"user": m.userID}
	if !success {
		metadata["reason"] = audit.ReasonInvalidCredential
	}
	_ = m.audit.Log(action, success, metadata)
}

func (m *CryptoManager) logFinalize(staged *stagedInput, generated bool, err error) {
	metadata := map[string]interface{}{
		"user":          m.userID,
		"generated_key": generated,
	}
	if staged != nil {
		metadata["passcode"] = staged.passcode != nil
		metadata["security_qa"] = staged.answers != nil
		metadata["question_count"] = len(staged.questions)
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	_ = m.audit.Log(audit.ActionFinalize, err == nil, metadata)
}

func (m *CryptoManager) logUpdate(action string, err error) {
	metadata := map[string]interface{}{"user": m.userID}
	if err != nil {
		metadata["error"] = err.Error()
	}
	_ = m.audit.Log(action, err == nil, metadata)
}

func checkQA(questions, answers []string) error {
	if len(questions) != len(answers) {
		return errs.ErrQuestionAnswerMismatch
	}
	if len(questions) == 0 {
		return fmt.Errorf("%w: at least one security question is required", errs.ErrConfiguration)
	}
	return nil
}

// answerMaterial is the answers concatenated in order, with no separator.
func answerMaterial(answers []string) []byte {
	return []byte(strings.Join(answers, ""))
}
