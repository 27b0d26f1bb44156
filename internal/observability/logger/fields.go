package logger

import (
	"time"

	"github.com/dropDatabas3/momtrack/internal/util"
	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Path(v string) zap.Field            { return zap.String("path", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func Bytes(v int) zap.Field              { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field        { return zap.String("client_ip", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func DurationMs(v int64) zap.Field       { return zap.Int64("duration_ms", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - NEGOCIO
// =================================================================================

// UserID identifica la cuenta de la aplicación (uid).
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// Email loguea el email enmascarado (j…@e….com).
func Email(v string) zap.Field { return zap.String("email", util.MaskEmail(v)) }

// Flow distingue "registration" de "reconnect" en el flujo de linking.
func Flow(v string) zap.Field { return zap.String("flow", v) }

// Phase es la fase del linking (CREATING_IDENTITY, PROCESSING_CALLBACK, ...).
func Phase(v string) zap.Field { return zap.String("phase", v) }

// Grant es el grant_type usado contra el token endpoint.
func Grant(v string) zap.Field { return zap.String("grant", v) }

// Masked loguea solo un prefijo corto de un secreto para correlación.
func Masked(key, secret string) zap.Field {
	if len(secret) <= 4 {
		return zap.String(key, "****")
	}
	return zap.String(key, secret[:4]+"…")
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

func String(key, v string) zap.Field  { return zap.String(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
