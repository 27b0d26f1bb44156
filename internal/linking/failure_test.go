package linking

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/momtrack/internal/huggingface"
	"github.com/dropDatabas3/momtrack/internal/tokens"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
		msg  string
	}{
		{"csrf", &huggingface.SecurityError{}, CsrfInvalid, msgCsrf},
		{"config", &huggingface.ConfigurationError{Missing: []string{"client_secret"}}, ConfigMissing, msgConfig},
		{"network", &huggingface.NetworkError{Op: "exchange", Err: errors.New("timeout")}, ProviderError, msgNetwork},
		{"invalid grant", &huggingface.TokenExchangeError{Code: "invalid_grant"}, ProviderError, msgInvalidGrant},
		{"provider description", &huggingface.TokenExchangeError{Code: "invalid_client", Description: "bad client"}, ProviderError, "bad client"},
		{"persistence", &tokens.PersistenceError{Op: "save", Err: errors.New("x")}, StorageError, msgStorage},
		{"wrapped", fmt.Errorf("callback: %w", &huggingface.SecurityError{}), CsrfInvalid, msgCsrf},
		{"unknown", errors.New("boom"), ProviderError, msgDefault},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := Classify(c.err)
			require.Equal(t, c.kind, f.Kind)
			require.Equal(t, c.msg, f.Message)
			require.ErrorIs(t, f, c.err)
		})
	}
	require.Nil(t, Classify(nil))
}

func TestClassify_MessageTextIsIgnored(t *testing.T) {
	f := Classify(errors.New("Invalid OAuth state parameter - possible CSRF attack"))
	require.Equal(t, ProviderError, f.Kind)
}

func TestDenied(t *testing.T) {
	require.Equal(t, "user said no", denied("access_denied", "user said no").Message)
	require.Equal(t, "access_denied", denied("access_denied", "").Message)
	require.Equal(t, msgDenied, denied("", "").Message)
}
