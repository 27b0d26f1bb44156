package huggingface

import (
	"fmt"
	"strings"
)

// ConfigurationError indica que falta configuración OAuth (client id/secret).
// Es fatal para la operación intentada, no para el proceso.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "huggingface: missing OAuth configuration: " + strings.Join(e.Missing, ", ")
}

// SecurityError indica un state OAuth inválido o vencido.
type SecurityError struct{}

func (e *SecurityError) Error() string { return "huggingface: invalid OAuth state, possible CSRF" }

// TokenExchangeError es una respuesta no exitosa del token endpoint.
type TokenExchangeError struct {
	Grant       string
	Status      int
	Code        string // campo "error" del proveedor
	Description string // campo "error_description" del proveedor
	Err         error
}

func (e *TokenExchangeError) Error() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Code != "":
		return e.Code
	case e.Grant == GrantRefreshToken:
		return "failed to refresh token"
	default:
		return "failed to exchange authorization code"
	}
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// UserInfoError es una respuesta no exitosa del endpoint de perfil.
type UserInfoError struct {
	Status int
}

func (e *UserInfoError) Error() string {
	return fmt.Sprintf("failed to fetch user info: status %d", e.Status)
}

// NetworkError envuelve fallas de transporte (DNS, conexión, timeout).
// Ninguna operación reintenta; el caller decide.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return "huggingface: " + e.Op + ": " + e.Err.Error() }

func (e *NetworkError) Unwrap() error { return e.Err }
