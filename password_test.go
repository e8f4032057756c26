package securefoundation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-imas/securefoundation/errs"
)

type exportedLogin struct {
	Host     string `plist:"host"`
	User     string `plist:"user"`
	Password string `plist:"password"`
}

func TestPasswordHelpers(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	assert.Len(t, salt, 16)

	t.Run("bytes", func(t *testing.T) {
		sealed, err := EncryptWithPassword([]byte("export"), "correct horse", salt)
		require.NoError(t, err)
		assert.NotContains(t, string(sealed), "export")

		got, err := DecryptWithPassword(sealed, "correct horse", salt)
		require.NoError(t, err)
		assert.Equal(t, []byte("export"), got)

		_, err = DecryptWithPassword(sealed, "battery staple", salt)
		assert.ErrorIs(t, err, errs.ErrVerification)

		other, err := NewSalt()
		require.NoError(t, err)
		_, err = DecryptWithPassword(sealed, "correct horse", other)
		assert.ErrorIs(t, err, errs.ErrVerification, "the salt is part of the key")
	})

	t.Run("objects", func(t *testing.T) {
		in := exportedLogin{Host: "vpn.example.com", User: "alice", Password: "s3cret"}
		sealed, err := EncryptObject(in, "correct horse", salt)
		require.NoError(t, err)

		var out exportedLogin
		require.NoError(t, DecryptObject(sealed, "correct horse", salt, &out))
		assert.Equal(t, in, out)

		assert.ErrorIs(t, DecryptObject(sealed, "wrong", salt, &out), errs.ErrVerification)
	})

	t.Run("hashes", func(t *testing.T) {
		a := exportedLogin{Host: "h", User: "u"}
		b := exportedLogin{Host: "h", User: "v"}

		md5a, err := HashObjectMD5(a)
		require.NoError(t, err)
		assert.Len(t, md5a, 16)
		again, err := HashObjectMD5(a)
		require.NoError(t, err)
		assert.Equal(t, md5a, again)

		shaA, err := HashObjectSHA256(a)
		require.NoError(t, err)
		shaB, err := HashObjectSHA256(b)
		require.NoError(t, err)
		assert.Len(t, shaA, 32)
		assert.NotEqual(t, shaA, shaB)
	})
}
