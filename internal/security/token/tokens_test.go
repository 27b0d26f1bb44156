package token

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateOpaque(t *testing.T) {
	a, err := GenerateOpaque(32)
	require.NoError(t, err)
	b, err := GenerateOpaque(32)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	require.Len(t, raw, 32)
}

func TestSHA256Base64URL_Stable(t *testing.T) {
	require.Equal(t, SHA256Base64URL("sid"), SHA256Base64URL("sid"))
	require.NotEqual(t, SHA256Base64URL("a"), SHA256Base64URL("b"))
}
