// Package crypto holds the primitives the crypto manager is built on: random
// generation, PBKDF2 key derivation, the AES-CBC envelope with its trailing
// checksum byte, MD5/SHA-256 digests and Base64 transcoding.
//
// Nothing here keeps state. Every algorithmic failure is returned as an error
// wrapping one of the errs categories.
package crypto

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/project-imas/securefoundation/errs"
	"github.com/project-imas/securefoundation/internal/misc"
)

// RandomBytes returns n bytes from the operating system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errs.ErrInvalidLength
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return buf, nil
}

// DeriveKey stretches secret into a key of the given length using PBKDF2 with
// HMAC-SHA256 and a fixed round count. The caller owns and persists salt.
func DeriveKey(secret []byte, length int, salt []byte) ([]byte, error) {
	if length <= 0 {
		return nil, errs.ErrInvalidLength
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: salt is required", errs.ErrInput)
	}
	return pbkdf2.Key(secret, salt, misc.DeriveIterations, length, sha256.New), nil
}

// HashMD5 returns the MD5 digest of data.
func HashMD5(data []byte) []byte {
	sum := md5.Sum(data)
	return sum[:]
}

// HashSHA256 returns the SHA-256 digest of data.
func HashSHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Sum adds the bytes of data as signed 8-bit integers, ignoring overflow.
func Sum(data []byte) int8 {
	var total int8
	for _, b := range data {
		total += int8(b)
	}
	return total
}

// TwosComplement negates value in 8-bit two's complement arithmetic.
func TwosComplement(value int8) int8 {
	return -value
}

// Checksum is the two's complement of Sum(data). Appending it to data makes the
// sum of the whole sequence zero.
func Checksum(data []byte) int8 {
	return TwosComplement(Sum(data))
}

// VerifyChecksum reports whether data ends with a valid checksum byte.
func VerifyChecksum(data []byte) bool {
	return len(data) > 0 && Sum(data) == 0
}

// Base64Encode returns the standard padded Base64 form of data.
func Base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64Decode reverses Base64Encode.
func Base64Decode(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedBase64, err)
	}
	return data, nil
}
