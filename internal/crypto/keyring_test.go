package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringPrefersEnvironment(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvKey, "from-env")
	require.NoError(t, keyring.Set(ServiceName, KeyName, "from-keyring"))

	key, err := NewKeyring().GetKey()
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)
}

func TestKeyringRoundTrip(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvKey, "")
	k := NewKeyring()

	_, err := k.GetKey()
	assert.ErrorIs(t, err, ErrKeyNotFound)

	assert.Error(t, k.SetKey(""))
	require.NoError(t, k.SetKey("s3cret"))
	key, err := k.GetKey()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", key)
	assert.True(t, k.IsAvailable())

	require.NoError(t, k.DeleteKey())
	require.NoError(t, k.DeleteKey())
	_, err = k.GetKey()
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
