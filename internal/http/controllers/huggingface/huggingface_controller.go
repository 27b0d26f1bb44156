// Package huggingface contiene el controller del flujo OAuth y del acceso
// autenticado a la API de Hugging Face con el token guardado.
package huggingface

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	hf "github.com/dropDatabas3/momtrack/internal/huggingface"
	httperrors "github.com/dropDatabas3/momtrack/internal/http/errors"
	"github.com/dropDatabas3/momtrack/internal/http/helpers"
	mw "github.com/dropDatabas3/momtrack/internal/http/middlewares"
	"github.com/dropDatabas3/momtrack/internal/linking"
	"github.com/dropDatabas3/momtrack/internal/observability/logger"
)

// Linker es el orquestador de linking.
type Linker interface {
	Connect(ctx context.Context, sid string) (string, error)
	HandleCallback(ctx context.Context, in linking.CallbackInput) *linking.Outcome
}

// Tokens es el repositorio de tokens.
type Tokens interface {
	Load(ctx context.Context, uid string) (*hf.Token, error)
	Clear(ctx context.Context, uid string) error
}

// Connections es el connection tracker.
type Connections interface {
	Status(ctx context.Context, uid string) bool
	Refresh(ctx context.Context, uid string) bool
}

// API es el cliente de recursos de Hugging Face.
type API interface {
	FetchUserInfo(ctx context.Context, accessToken string) (*hf.UserInfo, error)
	CallResourceAPI(ctx context.Context, endpoint string, opts hf.RequestOptions, accessToken string) (*http.Response, error)
}

// Deps agrupa las dependencias del controller.
type Deps struct {
	Linker        Linker
	Tokens        Tokens
	Connections   Connections
	API           API
	SessionCookie helpers.CookieConfig
	MarkerCookie  helpers.CookieConfig
	FrontendURL   string
}

type Controller struct {
	d Deps
}

func NewController(d Deps) *Controller {
	d.FrontendURL = strings.TrimRight(d.FrontendURL, "/")
	return &Controller{d: d}
}

// Connect maneja GET /api/huggingface/connect: redirect al proveedor sin marker.
func (c *Controller) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// un marker viejo convertiría un reconnect fallido en rollback
	helpers.ClearCookie(w, c.d.MarkerCookie)

	target, err := c.d.Linker.Connect(ctx, helpers.ReadCookie(r, c.d.SessionCookie.Name))
	if err != nil {
		f := linking.Classify(err)
		logger.From(ctx).Warn("connect failed", logger.Layer("controller"), logger.Op("HuggingFaceController.Connect"),
			logger.String("kind", f.Kind.String()), logger.Err(err))
		if f.Kind == linking.NotSignedIn {
			http.Redirect(w, r, c.frontend("/", "auth_error", f.Message), http.StatusFound)
			return
		}
		http.Redirect(w, r, c.frontend("/dashboard", "huggingface_error", f.Message), http.StatusFound)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback maneja GET /auth/huggingface/callback. Siempre termina en un
// redirect al frontend y siempre borra el marker.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out := c.d.Linker.HandleCallback(r.Context(), linking.CallbackInput{
		SessionID:        helpers.ReadCookie(r, c.d.SessionCookie.Name),
		Marker:           helpers.ReadCookie(r, c.d.MarkerCookie.Name),
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})

	helpers.ClearCookie(w, c.d.MarkerCookie)
	if out.EndSession {
		helpers.ClearCookie(w, c.d.SessionCookie)
	}
	http.Redirect(w, r, out.RedirectURL, http.StatusFound)
}

// StatusResponse es el flag que consume el banner del dashboard.
type StatusResponse struct {
	Connected bool `json:"connected"`
}

// Status maneja GET /api/huggingface/status.
func (c *Controller) Status(w http.ResponseWriter, r *http.Request) {
	s, _ := mw.GetSession(r.Context())
	helpers.WriteJSON(w, http.StatusOK, StatusResponse{Connected: c.d.Connections.Status(r.Context(), s.User.ID)})
}

// Disconnect maneja DELETE /api/huggingface/connection.
func (c *Controller) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, _ := mw.GetSession(ctx)
	if err := c.d.Tokens.Clear(ctx, s.User.ID); err != nil {
		logger.From(ctx).Error("disconnect failed", logger.Layer("controller"), logger.Op("HuggingFaceController.Disconnect"), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return
	}
	c.d.Connections.Refresh(ctx, s.User.ID)
	w.WriteHeader(http.StatusNoContent)
}

// WhoAmI maneja GET /api/huggingface/whoami.
func (c *Controller) WhoAmI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tok, ok := c.token(w, r)
	if !ok {
		return
	}
	info, err := c.d.API.FetchUserInfo(ctx, tok.AccessToken)
	if err != nil {
		httperrors.WriteError(w, upstreamError(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, info)
}

// maxInferenceBody acota el body reenviado en ambas direcciones.
const maxInferenceBody = 10 << 20

// Inference maneja POST /api/huggingface/inference/*: reenvía el body a la
// API de inferencia con el token del usuario y devuelve la respuesta tal cual.
func (c *Controller) Inference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tok, ok := c.token(w, r)
	if !ok {
		return
	}

	// siempre relativo: nunca se reenvía el token a un host elegido por el cliente
	endpoint := "/" + strings.TrimLeft(chi.URLParam(r, "*"), "/")
	if endpoint == "/" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("missing model path"))
		return
	}

	hdr := http.Header{}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		hdr.Set("Content-Type", ct)
	}
	if acc := r.Header.Get("Accept"); acc != "" {
		hdr.Set("Accept", acc)
	}
	resp, err := c.d.API.CallResourceAPI(ctx, endpoint, hf.RequestOptions{
		Method: http.MethodPost,
		Header: hdr,
		Body:   http.MaxBytesReader(w, r.Body, maxInferenceBody),
	}, tok.AccessToken)
	if err != nil {
		httperrors.WriteError(w, upstreamError(err))
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, io.LimitReader(resp.Body, maxInferenceBody))
}

// token carga el token del usuario de la sesión o escribe el error.
func (c *Controller) token(w http.ResponseWriter, r *http.Request) (*hf.Token, bool) {
	ctx := r.Context()
	s, _ := mw.GetSession(ctx)
	tok, err := c.d.Tokens.Load(ctx, s.User.ID)
	if err != nil {
		logger.From(ctx).Error("token load failed", logger.Layer("controller"), logger.Op("HuggingFaceController.token"), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
		return nil, false
	}
	if tok == nil {
		httperrors.WriteError(w, httperrors.ErrNotConnected)
		return nil, false
	}
	return tok, true
}

func upstreamError(err error) error {
	var (
		netErr  *hf.NetworkError
		infoErr *hf.UserInfoError
	)
	switch {
	case errors.As(err, &netErr):
		return httperrors.ErrGatewayTimeout.WithCause(err)
	case errors.As(err, &infoErr):
		if infoErr.Status == http.StatusUnauthorized {
			return httperrors.ErrNotConnected.WithDetail("stored token was rejected").WithCause(err)
		}
		return httperrors.ErrBadGateway.WithCause(err)
	}
	return httperrors.ErrBadGateway.WithCause(err)
}

func (c *Controller) frontend(path, key, msg string) string {
	v := url.Values{}
	v.Set(key, msg)
	return c.d.FrontendURL + path + "?" + v.Encode()
}
