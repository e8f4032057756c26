// Package errs declares the error values shared by the crypto manager, the
// keychain, the primitives and the shredder.
//
// # Categories
//
// Every error returned by this module wraps exactly one category sentinel:
//
//   - ErrConfiguration: the caller asked for something the current setup cannot
//     provide (nothing staged before finalize, question/answer count mismatch).
//   - ErrLocked: encryption, decryption or secure keychain access while locked.
//   - ErrVerification: the checksum byte did not verify after decryption. A wrong
//     key and corrupted ciphertext are indistinguishable.
//   - ErrStorage: reading or writing the keychain artifact, or shredding a file.
//   - ErrInput: malformed Base64, a key of the wrong length, a non-positive length.
//
// # Usage
//
//	data, err := manager.Decrypt(blob)
//	switch {
//	case errors.Is(err, errs.ErrLocked):
//	    // prompt for the passcode
//	case errors.Is(err, errs.ErrVerification):
//	    // probably the wrong key, possibly corruption
//	}
//
// Unlock failures always surface as ErrInvalidCredential, whether the wrapped
// key record is missing or its checksum failed.
package errs
