package misc

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/project-imas/securefoundation/errs"
)

func TestIsNotFoundError(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.True(t, IsNotFoundError(errs.ErrNotFound))
	assert.True(t, IsNotFoundError(fmt.Errorf("load: %w", errs.ErrNotFound)))
	assert.True(t, IsNotFoundError(&fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}))
	assert.False(t, IsNotFoundError(errs.ErrStorage))
	assert.False(t, IsNotFoundError(errors.New("item not found")))
}

func TestIsReservedService(t *testing.T) {
	assert.True(t, IsReservedService(CryptoService))
	assert.False(t, IsReservedService("mail"))
	assert.False(t, IsReservedService(""))
}
