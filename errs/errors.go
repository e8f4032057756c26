package errs

import (
	"errors"
	"fmt"
)

// Categories.
var (
	// ErrConfiguration indicates the request is not possible with the current setup.
	ErrConfiguration = errors.New("configuration error")

	// ErrLocked indicates the operation needs the master key and the manager is locked.
	ErrLocked = errors.New("crypto manager is locked")

	// ErrVerification indicates decrypted data failed its checksum.
	ErrVerification = errors.New("verification failed")

	// ErrStorage indicates an I/O failure against the keychain artifact or a shredded file.
	ErrStorage = errors.New("storage error")

	// ErrInput indicates malformed caller input.
	ErrInput = errors.New("invalid input")
)

// Configuration errors.
var (
	// ErrNothingStaged indicates finalize was called before any unlock factor was staged.
	ErrNothingStaged = fmt.Errorf("%w: no unlock factor staged", ErrConfiguration)

	// ErrQuestionAnswerMismatch indicates the question and answer lists differ in length.
	ErrQuestionAnswerMismatch = fmt.Errorf("%w: question and answer counts differ", ErrConfiguration)

	// ErrNotConfigured indicates the requested unlock factor has never been finalized.
	ErrNotConfigured = fmt.Errorf("%w: unlock factor not configured", ErrConfiguration)
)

// Verification errors.
var (
	// ErrChecksumMismatch indicates the trailing checksum byte did not verify.
	ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", ErrVerification)

	// ErrInvalidCredential is the only error an unlock attempt reports.
	ErrInvalidCredential = fmt.Errorf("%w: invalid credential", ErrVerification)
)

// Storage errors.
var (
	// ErrNotFound indicates no value is stored under the requested service and account.
	ErrNotFound = fmt.Errorf("%w: item not found", ErrStorage)

	// ErrConcurrentModification indicates the backing artifact changed underneath us.
	ErrConcurrentModification = fmt.Errorf("%w: concurrent modification", ErrStorage)
)

// Input errors.
var (
	// ErrKeyLength indicates a symmetric key is not 16, 24 or 32 bytes long.
	ErrKeyLength = fmt.Errorf("%w: unsupported key length", ErrInput)

	// ErrCiphertextTooShort indicates the envelope is shorter than IV plus one block.
	ErrCiphertextTooShort = fmt.Errorf("%w: ciphertext too short", ErrInput)

	// ErrMalformedBase64 indicates text that does not decode as standard Base64.
	ErrMalformedBase64 = fmt.Errorf("%w: malformed base64", ErrInput)

	// ErrInvalidLength indicates a zero or negative length argument.
	ErrInvalidLength = fmt.Errorf("%w: length must be positive", ErrInput)

	// ErrReservedService indicates a general keychain call addressed the
	// service that holds the wrapped key records.
	ErrReservedService = fmt.Errorf("%w: service is reserved for the crypto manager", ErrInput)
)
