package securefoundation

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-imas/securefoundation/errs"
	"github.com/project-imas/securefoundation/internal/codec"
	"github.com/project-imas/securefoundation/internal/crypto"
	"github.com/project-imas/securefoundation/internal/misc"
	"github.com/project-imas/securefoundation/keychain"
	"github.com/project-imas/securefoundation/persist"
)

var (
	testQuestions = []string{"First pet?", "City of birth?"}
	testAnswers   = []string{"Rex", "Lisbon"}
)

func newTestManager(t *testing.T, opts ...ManagerOption) (*CryptoManager, *keychain.Keychain) {
	t.Helper()
	return newManagerOn(t, persist.NewMemoryStore(), opts...)
}

func newManagerOn(t *testing.T, store persist.Store, opts ...ManagerOption) (*CryptoManager, *keychain.Keychain) {
	t.Helper()
	kc, err := keychain.New(store)
	require.NoError(t, err)

	records, err := kc.ClaimRecords()
	require.NoError(t, err)

	m, err := NewCryptoManager(records, opts...)
	require.NoError(t, err)
	kc.SetCipher(m.Cipher())
	return m, kc
}

func finalizedManager(t *testing.T, opts ...ManagerOption) (*CryptoManager, *keychain.Keychain) {
	t.Helper()
	m, kc := newTestManager(t, opts...)
	m.StoreTemporaryPasscode("P1")
	require.NoError(t, m.StoreTemporarySecurityQA(testQuestions, testAnswers))
	require.NoError(t, m.Finalize())
	return m, kc
}

func TestNewCryptoManager(t *testing.T) {
	_, err := NewCryptoManager(nil)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	kc, err := keychain.New(persist.NewMemoryStore())
	require.NoError(t, err)
	records, err := kc.ClaimRecords()
	require.NoError(t, err)

	_, err = kc.ClaimRecords()
	assert.ErrorIs(t, err, errs.ErrConfiguration, "records have a single owner")

	_, err = NewCryptoManager(records, WithKeySize(20))
	assert.ErrorIs(t, err, errs.ErrKeyLength)

	m, err := NewCryptoManager(records)
	require.NoError(t, err)
	assert.True(t, m.IsLocked(), "a new manager is always locked")
	assert.Equal(t, "locked", m.State().String())
	assert.False(t, m.HasPasscode())
	assert.False(t, m.HasSecurityQA())
	assert.Empty(t, m.SecurityQuestions())
}

func TestFinalizeThenUnlock(t *testing.T) {
	m, _ := newTestManager(t)
	m.StoreTemporaryPasscode("P1")
	require.NoError(t, m.Finalize())

	assert.True(t, m.IsLocked(), "finalize leaves the manager locked")
	assert.True(t, m.HasPasscode())
	assert.False(t, m.HasSecurityQA())

	require.NoError(t, m.UnlockWithPasscode("P1"))
	assert.False(t, m.IsLocked())

	m.Purge()
	assert.ErrorIs(t, m.UnlockWithPasscode("WRONG"), errs.ErrInvalidCredential)
	assert.True(t, m.IsLocked())
}

func TestFinalize_NothingStaged(t *testing.T) {
	m, kc := newTestManager(t)

	assert.ErrorIs(t, m.Finalize(), errs.ErrNothingStaged)
	assert.ErrorIs(t, m.Finalize(), errs.ErrConfiguration)
	assert.Empty(t, kc.ListAccounts(keychain.AllServices), "nothing is persisted")
	assert.True(t, m.IsLocked())
}

func TestFinalize_ClearsStagedInput(t *testing.T) {
	m, _ := newTestManager(t)
	m.StoreTemporaryPasscode("P1")
	require.NoError(t, m.Finalize())

	require.NoError(t, m.UnlockWithPasscode("P1"))
	assert.ErrorIs(t, m.Finalize(), errs.ErrNothingStaged)
}

func TestFinalize_LockedWithExistingRecords(t *testing.T) {
	m, _ := finalizedManager(t)

	m.StoreTemporaryPasscode("P2")
	assert.ErrorIs(t, m.Finalize(), errs.ErrLocked)

	require.NoError(t, m.UnlockWithPasscode("P1"), "the original records are untouched")

	// the staged passcode survived the failure and rewraps the live key now
	require.NoError(t, m.Finalize())
	m.Purge()
	require.NoError(t, m.UnlockWithPasscode("P2"))
}

func TestFinalize_RewrapsExistingKeyWhenUnlocked(t *testing.T) {
	m, kc := newTestManager(t)
	m.StoreTemporaryPasscode("P1")
	require.NoError(t, m.Finalize())
	require.NoError(t, m.UnlockWithPasscode("P1"))

	sealed, err := m.Encrypt([]byte("payload"))
	require.NoError(t, err)

	require.NoError(t, m.StoreTemporarySecurityQA(testQuestions, testAnswers))
	require.NoError(t, m.Finalize())
	assert.False(t, m.IsLocked(), "finalize does not change the lock state")
	assert.True(t, m.HasSecurityQA())
	assert.Equal(t, testQuestions, m.SecurityQuestions())

	m.Purge()
	require.NoError(t, m.UnlockWithSecurityAnswers(testAnswers))
	got, err := m.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got, "the same master key was wrapped again")

	accounts := kc.ListAccounts(misc.CryptoService)
	assert.Len(t, accounts, 3)
}

func TestDualFactorRecovery(t *testing.T) {
	m, _ := finalizedManager(t)

	require.NoError(t, m.UnlockWithPasscode("P1"))
	sealed, err := m.Encrypt([]byte("written while unlocked by passcode"))
	require.NoError(t, err)
	m.Purge()

	require.NoError(t, m.UnlockWithSecurityAnswers(testAnswers))
	got, err := m.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("written while unlocked by passcode"), got)

	sealed, err = m.Encrypt([]byte("written while unlocked by answers"))
	require.NoError(t, err)
	m.Purge()

	require.NoError(t, m.UnlockWithPasscode("P1"))
	got, err = m.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("written while unlocked by answers"), got)
}

func TestUnlockWithSecurityAnswers(t *testing.T) {
	m, _ := finalizedManager(t)

	tests := []struct {
		name    string
		answers []string
	}{
		{name: "too few", answers: []string{"Rex"}},
		{name: "too many", answers: []string{"Rex", "Lisbon", "extra"}},
		{name: "none", answers: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.UnlockWithSecurityAnswers(tt.answers)
			assert.ErrorIs(t, err, errs.ErrInvalidCredential)
			assert.True(t, m.IsLocked())
		})
	}

	t.Run("answers are concatenated", func(t *testing.T) {
		// same concatenation, different split
		require.NoError(t, m.UnlockWithSecurityAnswers([]string{"RexLis", "bon"}))
		m.Purge()
	})

	t.Run("not configured", func(t *testing.T) {
		fresh, _ := newTestManager(t)
		assert.ErrorIs(t, fresh.UnlockWithSecurityAnswers(testAnswers), errs.ErrInvalidCredential)
	})
}

func TestUnlock_MissingRecordLooksLikeWrongCredential(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.UnlockWithPasscode("anything")
	assert.ErrorIs(t, err, errs.ErrInvalidCredential)
	assert.True(t, m.IsLocked())
}

func TestUnlock_CorruptRecord(t *testing.T) {
	store := persist.NewMemoryStore()
	m, _ := newManagerOn(t, store)
	m.StoreTemporaryPasscode("P1")
	require.NoError(t, m.Finalize())

	loaded, err := store.Load()
	require.NoError(t, err)
	var doc map[string]map[string]map[string][]byte
	require.NoError(t, codec.Default.Unmarshal(loaded.Data, &doc))
	doc["plain"][misc.CryptoService][misc.PasscodeAccount] = []byte("garbage")
	data, err := codec.Default.Marshal(doc)
	require.NoError(t, err)
	_, err = store.Save(data, loaded.Version)
	require.NoError(t, err)

	reopened, _ := newManagerOn(t, store)
	assert.True(t, reopened.HasPasscode())
	assert.ErrorIs(t, reopened.UnlockWithPasscode("P1"), errs.ErrInvalidCredential)
	assert.True(t, reopened.IsLocked())
}

func TestRecordsAreOutOfReachOfTheKeychainAPI(t *testing.T) {
	m, kc := finalizedManager(t)

	assert.ErrorIs(t, kc.DeletePlain(misc.CryptoService, misc.PasscodeAccount), errs.ErrReservedService)
	assert.ErrorIs(t, kc.SetPlain(misc.CryptoService, misc.AnswersAccount, []byte("x")), errs.ErrReservedService)
	assert.ErrorIs(t, kc.SetPlainItems(keychain.Item{
		Service: misc.CryptoService, Account: misc.PasscodeAccount, Value: []byte("x"),
	}), errs.ErrReservedService)
	assert.ErrorIs(t, kc.DeleteSecure(misc.CryptoService, misc.PasscodeAccount), errs.ErrReservedService)

	assert.True(t, m.HasPasscode())
	assert.True(t, m.HasSecurityQA())
	require.NoError(t, m.UnlockWithPasscode("P1"))
	m.Purge()
	require.NoError(t, m.UnlockWithSecurityAnswers(testAnswers))
}

func TestUpdatePasscode(t *testing.T) {
	m, _ := finalizedManager(t)

	t.Run("locked", func(t *testing.T) {
		assert.ErrorIs(t, m.UpdatePasscode("NEW"), errs.ErrLocked)
		require.NoError(t, m.UnlockWithPasscode("P1"), "nothing changed")
		m.Purge()
	})

	t.Run("unlocked", func(t *testing.T) {
		require.NoError(t, m.UnlockWithPasscode("P1"))
		require.NoError(t, m.UpdatePasscode("NEW"))

		m.Purge()
		require.NoError(t, m.UnlockWithPasscode("NEW"))
		m.Purge()

		assert.ErrorIs(t, m.UnlockWithPasscode("P1"), errs.ErrInvalidCredential, "the old passcode no longer unlocks")
		assert.True(t, m.IsLocked())

		require.NoError(t, m.UnlockWithSecurityAnswers(testAnswers), "the other factor still works")
	})
}

func TestUpdateSecurityQA(t *testing.T) {
	m, _ := finalizedManager(t)

	assert.ErrorIs(t, m.UpdateSecurityQA([]string{"Q"}, []string{"A"}), errs.ErrLocked)

	require.NoError(t, m.UnlockWithPasscode("P1"))
	assert.ErrorIs(t, m.UpdateSecurityQA([]string{"Q1", "Q2"}, []string{"A"}), errs.ErrQuestionAnswerMismatch)
	assert.Equal(t, testQuestions, m.SecurityQuestions())

	newQuestions := []string{"Favourite colour?"}
	require.NoError(t, m.UpdateSecurityQA(newQuestions, []string{"teal"}))
	assert.Equal(t, newQuestions, m.SecurityQuestions())

	m.Purge()
	require.NoError(t, m.UnlockWithSecurityAnswers([]string{"teal"}))
	m.Purge()
	assert.ErrorIs(t, m.UnlockWithSecurityAnswers(testAnswers), errs.ErrInvalidCredential,
		"old answers no longer match the question count")
}

func TestStoreTemporarySecurityQA_Mismatch(t *testing.T) {
	m, _ := newTestManager(t)

	assert.ErrorIs(t, m.StoreTemporarySecurityQA([]string{"Q1", "Q2"}, []string{"A1"}), errs.ErrQuestionAnswerMismatch)
	assert.ErrorIs(t, m.StoreTemporarySecurityQA(nil, nil), errs.ErrConfiguration)
	assert.ErrorIs(t, m.Finalize(), errs.ErrNothingStaged, "a rejected pair is not staged")
}

func TestEncryptDecryptGating(t *testing.T) {
	m, _ := finalizedManager(t)

	_, err := m.Encrypt([]byte("data"))
	assert.ErrorIs(t, err, errs.ErrLocked)
	_, err = m.Decrypt([]byte("data"))
	assert.ErrorIs(t, err, errs.ErrLocked)

	require.NoError(t, m.UnlockWithPasscode("P1"))
	sealed, err := m.Encrypt([]byte("data"))
	require.NoError(t, err)
	got, err := m.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	_, err = m.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, errs.ErrInput)
}

func TestSecureStoreGating(t *testing.T) {
	m, kc := finalizedManager(t)

	assert.ErrorIs(t, kc.SetSecure("bank", "pin", []byte("4321")), errs.ErrLocked)

	require.NoError(t, m.UnlockWithPasscode("P1"))
	require.NoError(t, kc.SetSecure("bank", "pin", []byte("4321")))
	got, err := kc.Secure("bank", "pin")
	require.NoError(t, err)
	assert.Equal(t, []byte("4321"), got)

	m.Purge()
	_, err = kc.Secure("bank", "pin")
	assert.ErrorIs(t, err, errs.ErrLocked)
}

func TestPurgeIdempotent(t *testing.T) {
	m, _ := finalizedManager(t)
	require.NoError(t, m.UnlockWithPasscode("P1"))

	m.Purge()
	assert.True(t, m.IsLocked())
	m.Purge()
	assert.True(t, m.IsLocked())
}

func TestKeySize32(t *testing.T) {
	m, _ := newTestManager(t, WithKeySize(32))
	m.StoreTemporaryPasscode("P1")
	require.NoError(t, m.Finalize())
	require.NoError(t, m.UnlockWithPasscode("P1"))

	sealed, err := m.Encrypt([]byte("data"))
	require.NoError(t, err)
	got, err := m.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
}

// countingPrimitives wraps the real suite and can fail on demand.
type countingPrimitives struct {
	crypto.Suite
	mu          sync.Mutex
	randomCalls int
	failRandom  bool
}

func (p *countingPrimitives) RandomBytes(n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.randomCalls++
	if p.failRandom {
		return nil, errors.New("entropy unavailable")
	}
	return p.Suite.RandomBytes(n)
}

func TestFinalize_FailureKeepsStagedInput(t *testing.T) {
	prims := &countingPrimitives{failRandom: true}
	m, kc := newTestManager(t, WithPrimitives(prims))

	m.StoreTemporaryPasscode("P1")
	require.Error(t, m.Finalize())
	assert.False(t, m.HasPasscode())
	assert.Empty(t, kc.ListAccounts(keychain.AllServices))

	prims.mu.Lock()
	prims.failRandom = false
	prims.mu.Unlock()

	require.NoError(t, m.Finalize(), "the staged passcode is retried")
	require.NoError(t, m.UnlockWithPasscode("P1"))
}

func TestFinalize_FreshSaltPerFactor(t *testing.T) {
	prims := &countingPrimitives{}
	m, _ := newTestManager(t, WithPrimitives(prims))

	m.StoreTemporaryPasscode("P1")
	require.NoError(t, m.StoreTemporarySecurityQA(testQuestions, testAnswers))
	require.NoError(t, m.Finalize())

	// master key + one salt per factor; the envelope IVs come from the cipher
	assert.Equal(t, 3, prims.randomCalls)
}

func TestConcurrentUnlockAndPurge(t *testing.T) {
	m, _ := finalizedManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = m.UnlockWithPasscode("P1")
		}()
		go func() {
			defer wg.Done()
			m.Purge()
		}()
		go func() {
			defer wg.Done()
			sealed, err := m.Encrypt([]byte("x"))
			if err != nil {
				assert.ErrorIs(t, err, errs.ErrLocked)
				return
			}
			_, err = m.Decrypt(sealed)
			if err != nil {
				assert.ErrorIs(t, err, errs.ErrLocked)
			}
		}()
	}
	wg.Wait()

	m.Purge()
	assert.True(t, m.IsLocked())
	require.NoError(t, m.UnlockWithPasscode("P1"))
}

func TestConcurrentUpdates(t *testing.T) {
	m, _ := finalizedManager(t)
	require.NoError(t, m.UnlockWithPasscode("P1"))

	codes := []string{"A", "B", "C", "D"}
	var wg sync.WaitGroup
	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			assert.NoError(t, m.UpdatePasscode(code))
		}(code)
	}
	wg.Wait()
	m.Purge()

	unlocked := 0
	for _, code := range codes {
		if m.UnlockWithPasscode(code) == nil {
			unlocked++
			m.Purge()
		}
	}
	assert.Equal(t, 1, unlocked, "exactly one complete record survives")
}
