package huggingface

import "time"

// Token es el par de credenciales obtenido del proveedor.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	Scope        string

	// ExpiresAt es absoluto, con precisión de ms. Zero = no expira.
	ExpiresAt time.Time
}

// Expired reporta si el token venció en now. Un token sin expiración nunca vence.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && t.ExpiresAt.Before(now)
}

// UserInfo es el perfil devuelto por whoami-v2.
type UserInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Fullname  string `json:"fullname"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
