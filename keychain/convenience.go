package keychain

import (
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/project-imas/securefoundation/errs"
)

func (k *Keychain) SetPlainString(service, account, value string) error {
	return k.SetPlain(service, account, []byte(value))
}

func (k *Keychain) PlainString(service, account string) (string, error) {
	value, err := k.Plain(service, account)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func (k *Keychain) SetSecureString(service, account, value string) error {
	return k.SetSecure(service, account, []byte(value))
}

func (k *Keychain) SecureString(service, account string) (string, error) {
	value, err := k.Secure(service, account)
	if err != nil {
		return "", err
	}
	defer memguard.WipeBytes(value)
	return string(value), nil
}

// SetSecureObject property-list encodes v and stores it in the secure partition.
func (k *Keychain) SetSecureObject(service, account string, v interface{}) error {
	data, err := k.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInput, err)
	}
	defer memguard.WipeBytes(data)
	return k.SetSecure(service, account, data)
}

// SecureObject decodes a value stored with SetSecureObject into v.
func (k *Keychain) SecureObject(service, account string, v interface{}) error {
	data, err := k.Secure(service, account)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(data)
	if err = k.codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInput, err)
	}
	return nil
}
