package linking

import (
	"errors"

	"github.com/dropDatabas3/momtrack/internal/huggingface"
	"github.com/dropDatabas3/momtrack/internal/tokens"
)

// Kind clasifica por qué falló un paso del linking.
type Kind int

const (
	CsrfInvalid Kind = iota + 1
	ConfigMissing
	ProviderError
	ProviderDenied
	MissingParams
	StorageError
	NotSignedIn
)

func (k Kind) String() string {
	switch k {
	case CsrfInvalid:
		return "csrf_invalid"
	case ConfigMissing:
		return "config_missing"
	case ProviderError:
		return "provider_error"
	case ProviderDenied:
		return "provider_denied"
	case MissingParams:
		return "missing_params"
	case StorageError:
		return "storage_error"
	case NotSignedIn:
		return "not_signed_in"
	}
	return "unknown"
}

// Mensajes para el usuario.
const (
	msgNotSignedIn   = "You must be logged in to connect Hugging Face. Please log in first."
	msgMissingParams = "Missing authorization code or state parameter. The authentication request may have been corrupted."
	msgCsrf          = "Security validation failed. The authentication request may have been tampered with."
	msgInvalidGrant  = "Authorization code is invalid or has expired. Please try registering again."
	msgNetwork       = "Network error while connecting to Hugging Face. Please check your connection and try again."
	msgConfig        = "Hugging Face connection is not configured. Please contact support."
	msgStorage       = "Failed to save authentication token. Please try again."
	msgDefault       = "Failed to connect Hugging Face account."
	msgDenied        = "Authentication failed"
	msgRollback      = "Account registration failed. Please try again."
)

// Failure es el resultado tipado de un paso fallido. Message es apto para mostrar.
type Failure struct {
	Kind    Kind
	Message string
	Cause   error
}

func (f *Failure) Error() string { return f.Message }
func (f *Failure) Unwrap() error { return f.Cause }

// Classify convierte errores de huggingface/tokens en un Failure.
// La decisión sale del tipo del error, nunca del texto.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	var (
		f      *Failure
		sec    *huggingface.SecurityError
		cfg    *huggingface.ConfigurationError
		netErr *huggingface.NetworkError
		exErr  *huggingface.TokenExchangeError
		pErr   *tokens.PersistenceError
	)
	switch {
	case errors.As(err, &f):
		return f
	case errors.As(err, &sec):
		return &Failure{Kind: CsrfInvalid, Message: msgCsrf, Cause: err}
	case errors.As(err, &cfg):
		return &Failure{Kind: ConfigMissing, Message: msgConfig, Cause: err}
	case errors.As(err, &netErr):
		return &Failure{Kind: ProviderError, Message: msgNetwork, Cause: err}
	case errors.As(err, &exErr):
		if exErr.Code == "invalid_grant" {
			return &Failure{Kind: ProviderError, Message: msgInvalidGrant, Cause: err}
		}
		return &Failure{Kind: ProviderError, Message: exErr.Error(), Cause: err}
	case errors.As(err, &pErr):
		return &Failure{Kind: StorageError, Message: msgStorage, Cause: err}
	}
	return &Failure{Kind: ProviderError, Message: msgDefault, Cause: err}
}

// denied construye el Failure de un callback con parámetro error.
func denied(code, description string) *Failure {
	msg := description
	if msg == "" {
		msg = code
	}
	if msg == "" {
		msg = msgDenied
	}
	return &Failure{Kind: ProviderDenied, Message: msg}
}
