package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/project-imas/securefoundation/errs"
	"github.com/project-imas/securefoundation/internal/misc"
)

// Encrypt seals plaintext under key and returns IV || AES-CBC(PKCS#7(plaintext || checksum)).
//
// The checksum byte is not a MAC. It catches a wrong key or accidental
// corruption with high probability and nothing more; do not treat a
// successful Decrypt as proof of authenticity.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}

	iv, err := RandomBytes(misc.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	payload := make([]byte, len(plaintext)+1)
	copy(payload, plaintext)
	payload[len(plaintext)] = byte(Checksum(plaintext))

	padded := pad(payload)
	memguard.WipeBytes(payload)
	defer memguard.WipeBytes(padded)

	out := make([]byte, misc.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[misc.BlockSize:], padded)

	return out, nil
}

// Decrypt opens an envelope produced by Encrypt. A wrong key, bad padding and a
// failed checksum all report errs.ErrChecksumMismatch.
func Decrypt(envelope, key []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}

	if len(envelope) < 2*misc.BlockSize {
		return nil, errs.ErrCiphertextTooShort
	}
	if (len(envelope)-misc.BlockSize)%misc.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a whole number of blocks", errs.ErrInput)
	}

	iv := envelope[:misc.BlockSize]
	body := envelope[misc.BlockSize:]

	decrypted := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, body)
	defer memguard.WipeBytes(decrypted)

	payload, ok := unpad(decrypted)
	if !ok || !VerifyChecksum(payload) {
		return nil, errs.ErrChecksumMismatch
	}

	plaintext := make([]byte, len(payload)-1)
	copy(plaintext, payload)
	return plaintext, nil
}

func newBlock(key []byte) (cipher.Block, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: got %d bytes", errs.ErrKeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return block, nil
}

func pad(data []byte) []byte {
	n := misc.BlockSize - len(data)%misc.BlockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(data []byte) ([]byte, bool) {
	if len(data) == 0 || len(data)%misc.BlockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > misc.BlockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	out := data[:len(data)-n]
	// the checksum byte must survive unpadding
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
