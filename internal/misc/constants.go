package misc

const (
	// DeriveIterations is the PBKDF2 round count. Changing it orphans every wrapped key.
	DeriveIterations = 1000

	// SaltSize is the per-factor derivation salt length.
	SaltSize = 16

	// BlockSize is the AES block and IV length.
	BlockSize = 16

	// DefaultKeySize is the master key length (AES-128).
	DefaultKeySize = 16

	// CryptoService is the reserved keychain service holding wrapped key records.
	CryptoService = "securefoundation.crypto"

	// Reserved accounts under CryptoService.
	PasscodeAccount  = "passcode"
	AnswersAccount   = "answers"
	QuestionsAccount = "questions"

	// KeychainFileName is the single sandboxed artifact backing the keychain.
	KeychainFileName = "keychain.plist"

	FilePermissions = 0600 // user read + write
	DirPermissions  = 0700
)
