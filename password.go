package securefoundation

import (
	"github.com/project-imas/securefoundation/internal/crypto"
	"github.com/project-imas/securefoundation/internal/misc"
)

// Password-based helpers for data that is protected by a secret the user
// types rather than by the master key, such as an export file. They use the
// same envelope and derivation as the wrapped key records: PBKDF2-SHA256 over
// password and salt to an AES-128 key, then IV || AES-CBC with a checksum
// byte. The salt should be at least 16 random bytes and stored next to the
// ciphertext.

// NewSalt returns 16 random bytes for the password helpers.
func NewSalt() ([]byte, error) {
	return crypto.RandomBytes(misc.SaltSize)
}

// EncryptWithPassword seals data under a key derived from password and salt.
func EncryptWithPassword(data []byte, password string, salt []byte) ([]byte, error) {
	return crypto.EncryptWithPassword(data, password, salt)
}

// DecryptWithPassword opens data sealed by EncryptWithPassword. A wrong
// password fails with errs.ErrVerification.
func DecryptWithPassword(data []byte, password string, salt []byte) ([]byte, error) {
	return crypto.DecryptWithPassword(data, password, salt)
}

// EncryptObject property-list encodes v, then seals it like EncryptWithPassword.
func EncryptObject(v interface{}, password string, salt []byte) ([]byte, error) {
	return crypto.EncryptObject(v, password, salt)
}

// DecryptObject reverses EncryptObject into v.
func DecryptObject(data []byte, password string, salt []byte, v interface{}) error {
	return crypto.DecryptObject(data, password, salt, v)
}

// HashObjectMD5 is the MD5 digest of v's binary property list encoding. It
// identifies content; it is not a security boundary.
func HashObjectMD5(v interface{}) ([]byte, error) {
	return crypto.HashObjectMD5(v)
}

// HashObjectSHA256 is the SHA-256 digest of v's binary property list encoding.
func HashObjectSHA256(v interface{}) ([]byte, error) {
	return crypto.HashObjectSHA256(v)
}
