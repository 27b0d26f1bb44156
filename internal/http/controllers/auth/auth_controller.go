// Package auth contiene el controller de registro, login, logout y /me.
package auth

import (
	"context"
	"errors"
	"net/http"

	httperrors "github.com/dropDatabas3/momtrack/internal/http/errors"
	"github.com/dropDatabas3/momtrack/internal/http/helpers"
	mw "github.com/dropDatabas3/momtrack/internal/http/middlewares"
	"github.com/dropDatabas3/momtrack/internal/identity"
	"github.com/dropDatabas3/momtrack/internal/linking"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
)

// Identity es lo que el controller usa del identity provider.
type Identity interface {
	SignIn(ctx context.Context, email, password string) (identity.Session, error)
	SignOut(ctx context.Context, sid string) error
}

// Registrar arranca el flujo de registro + linking.
type Registrar interface {
	Register(ctx context.Context, in linking.RegisterInput) (*linking.RegisterResult, error)
}

// ConnectionStatus expone el flag de conexión cacheado.
type ConnectionStatus interface {
	Status(ctx context.Context, uid string) bool
}

// Deps agrupa las dependencias del controller.
type Deps struct {
	Identity      Identity
	Registrar     Registrar
	Connections   ConnectionStatus
	SessionCookie helpers.CookieConfig
	MarkerCookie  helpers.CookieConfig
}

// Controller maneja /api/auth/*.
type Controller struct {
	d Deps
}

func NewController(d Deps) *Controller { return &Controller{d: d} }

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse es el usuario más el flag de conexión.
type UserResponse struct {
	User                 identity.User `json:"user"`
	HuggingFaceConnected bool          `json:"huggingface_connected"`
}

// RegisterResponse lleva la URL del proveedor a la que el frontend debe navegar.
type RegisterResponse struct {
	User        identity.User `json:"user"`
	RedirectURL string        `json:"redirect_url"`
}

// Register maneja POST /api/auth/register.
func (c *Controller) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("AuthController.Register"))

	var req registerRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	res, err := c.d.Registrar.Register(ctx, linking.RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		log.Info("registration rejected", logger.Err(err))
		httperrors.WriteError(w, mapRegisterError(err))
		return
	}

	helpers.SetCookie(w, c.d.SessionCookie, res.Session.ID)
	helpers.SetCookie(w, c.d.MarkerCookie, res.Marker)
	helpers.WriteJSON(w, http.StatusCreated, RegisterResponse{User: res.User, RedirectURL: res.RedirectURL})
}

func mapRegisterError(err error) error {
	var (
		ve   *linking.ValidationError
		fail *linking.Failure
	)
	switch {
	case errors.As(err, &ve):
		return httperrors.ErrValidation.WithMessage(ve.Message)
	case errors.Is(err, identity.ErrEmailTaken):
		return httperrors.ErrEmailAlreadyInUse
	case errors.As(err, &fail):
		if fail.Kind == linking.ConfigMissing {
			return httperrors.ErrProviderNotConfigured.WithCause(err)
		}
		return httperrors.ErrBadGateway.WithMessage(fail.Message).WithCause(err)
	}
	return httperrors.ErrInternalServerError.WithCause(err)
}

// Login maneja POST /api/auth/login.
func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req credentialsRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrValidation.WithMessage("Please fill in all required fields"))
		return
	}

	s, err := c.d.Identity.SignIn(ctx, req.Email, req.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		httperrors.WriteError(w, httperrors.ErrInvalidCredentials)
		return
	}
	if err != nil {
		logger.From(ctx).Error("sign in failed", logger.Layer("controller"), logger.Op("AuthController.Login"), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	helpers.SetCookie(w, c.d.SessionCookie, s.ID)
	helpers.WriteJSON(w, http.StatusOK, UserResponse{
		User:                 s.User,
		HuggingFaceConnected: c.d.Connections.Status(ctx, s.User.ID),
	})
}

// Logout maneja POST /api/auth/logout. Sin sesión también responde 204.
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if sid := helpers.ReadCookie(r, c.d.SessionCookie.Name); sid != "" {
		if err := c.d.Identity.SignOut(ctx, sid); err != nil {
			logger.From(ctx).Warn("sign out failed", logger.Layer("controller"), logger.Op("AuthController.Logout"), logger.Err(err))
		}
	}
	helpers.ClearCookie(w, c.d.SessionCookie)
	helpers.ClearCookie(w, c.d.MarkerCookie)
	w.WriteHeader(http.StatusNoContent)
}

// Me maneja GET /api/auth/me (requiere sesión).
func (c *Controller) Me(w http.ResponseWriter, r *http.Request) {
	s, ok := mw.GetSession(r.Context())
	if !ok {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, UserResponse{
		User:                 s.User,
		HuggingFaceConnected: c.d.Connections.Status(r.Context(), s.User.ID),
	})
}
