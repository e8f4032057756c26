package crypto

// Suite exposes the package functions as a value so callers can inject a
// substitute primitives implementation.
type Suite struct{}

func (Suite) RandomBytes(n int) ([]byte, error) { return RandomBytes(n) }

func (Suite) DeriveKey(secret []byte, length int, salt []byte) ([]byte, error) {
	return DeriveKey(secret, length, salt)
}

func (Suite) Encrypt(plaintext, key []byte) ([]byte, error) { return Encrypt(plaintext, key) }

func (Suite) Decrypt(envelope, key []byte) ([]byte, error) { return Decrypt(envelope, key) }
