package misc

import (
	"errors"
	"os"

	"github.com/project-imas/securefoundation/errs"
)

// IsNotFoundError reports whether err means the thing asked for does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, errs.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}

// IsReservedService reports whether service is owned by the crypto manager.
func IsReservedService(service string) bool {
	return service == CryptoService
}
