package crypto

import (
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/project-imas/securefoundation/internal/codec"
	"github.com/project-imas/securefoundation/internal/misc"
)

// EncryptWithPassword derives an AES-128 key from password and salt, then seals data with it.
func EncryptWithPassword(data []byte, password string, salt []byte) ([]byte, error) {
	key, err := DeriveKey([]byte(password), misc.DefaultKeySize, salt)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)
	return Encrypt(data, key)
}

// DecryptWithPassword reverses EncryptWithPassword.
func DecryptWithPassword(data []byte, password string, salt []byte) ([]byte, error) {
	key, err := DeriveKey([]byte(password), misc.DefaultKeySize, salt)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)
	return Decrypt(data, key)
}

// EncryptObject property-list encodes v and encrypts the result with a password-derived key.
func EncryptObject(v interface{}, password string, salt []byte) ([]byte, error) {
	data, err := codec.Default.Marshal(v)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(data)
	return EncryptWithPassword(data, password, salt)
}

// DecryptObject decrypts data with a password-derived key and decodes the property list into v.
func DecryptObject(data []byte, password string, salt []byte, v interface{}) error {
	plain, err := DecryptWithPassword(data, password, salt)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(plain)
	return codec.Default.Unmarshal(plain, v)
}

// HashObjectMD5 hashes the binary property list encoding of v.
func HashObjectMD5(v interface{}) ([]byte, error) {
	data, err := codec.Default.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to hash object: %w", err)
	}
	return HashMD5(data), nil
}

// HashObjectSHA256 hashes the binary property list encoding of v.
func HashObjectSHA256(v interface{}) ([]byte, error) {
	data, err := codec.Default.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to hash object: %w", err)
	}
	return HashSHA256(data), nil
}
