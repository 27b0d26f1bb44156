package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/momtrack/internal/config"
)

// fakeHF simula los endpoints de Hugging Face que usa el flujo.
func fakeHF(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"bad code"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"hf_live","token_type":"bearer","expires_in":3600,"refresh_token":"hf_refresh","scope":"openid profile"}`)
	})
	mux.HandleFunc("/api/whoami-v2", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer hf_live" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"hf-1","name":"ana","fullname":"Ana","email":"ana@example.com"}`)
	})
	mux.HandleFunc("/models/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer hf_live", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"`+strings.TrimPrefix(r.URL.Path, "/models/")+`","echo":`+string(b)+`}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	api    *httptest.Server
	client *http.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hf := fakeHF(t)
	t.Setenv("HUGGINGFACE_CLIENT_ID", "cid")
	t.Setenv("HUGGINGFACE_CLIENT_SECRET", "csecret")
	t.Setenv("HUGGINGFACE_AUTHORIZE_URL", hf.URL+"/oauth/authorize")
	t.Setenv("HUGGINGFACE_TOKEN_URL", hf.URL+"/oauth/token")
	t.Setenv("HUGGINGFACE_USERINFO_URL", hf.URL+"/api/whoami-v2")
	t.Setenv("HUGGINGFACE_INFERENCE_URL", hf.URL)
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("CACHE_KIND", "memory")
	t.Setenv("FRONTEND_URL", "http://front.test")

	cfg, err := config.Load("")
	require.NoError(t, err)

	a, err := New(context.Background(), cfg, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	api := httptest.NewServer(a.Handler)
	t.Cleanup(api.Close)

	jar, _ := cookiejar.New(nil)
	return &harness{
		api: api,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (h *harness) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.api.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// register devuelve el state emitido en la URL del proveedor.
func (h *harness) register(t *testing.T, email string) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/auth/register", `{"name":"Ana","email":"`+email+`","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		RedirectURL string `json:"redirect_url"`
	}
	decode(t, resp, &body)
	u, err := url.Parse(body.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "cid", u.Query().Get("client_id"))
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestRegistrationLinksAccount(t *testing.T) {
	h := newHarness(t)
	state := h.register(t, "ana@example.com")

	resp := h.do(t, http.MethodGet, "/auth/huggingface/callback?code=good-code&state="+url.QueryEscape(state), "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/dashboard", loc.Path)
	require.Equal(t, "true", loc.Query().Get("huggingface_connected"))
	require.Equal(t, "true", loc.Query().Get("registration_success"))

	var status struct {
		Connected bool `json:"connected"`
	}
	resp = h.do(t, http.MethodGet, "/api/huggingface/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &status)
	require.True(t, status.Connected)

	var who map[string]any
	resp = h.do(t, http.MethodGet, "/api/huggingface/whoami", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &who)
	require.Equal(t, "ana", who["name"])

	var inf map[string]any
	resp = h.do(t, http.MethodPost, "/api/huggingface/inference/models/gpt2", `{"inputs":"hola"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &inf)
	require.Equal(t, "gpt2", inf["model"])

	// el state es de un solo uso
	resp = h.do(t, http.MethodGet, "/auth/huggingface/callback?code=good-code&state="+url.QueryEscape(state), "")
	loc, _ = url.Parse(resp.Header.Get("Location"))
	require.Equal(t, "/dashboard", loc.Path)
	require.Contains(t, loc.Query().Get("huggingface_error"), "Security validation failed")

	resp = h.do(t, http.MethodDelete, "/api/huggingface/connection", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.do(t, http.MethodGet, "/api/huggingface/status", "")
	decode(t, resp, &status)
	require.False(t, status.Connected)

	resp = h.do(t, http.MethodGet, "/api/huggingface/whoami", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRegistrationRollsBackOnForgedState(t *testing.T) {
	h := newHarness(t)
	h.register(t, "bob@example.com")

	resp := h.do(t, http.MethodGet, "/auth/huggingface/callback?code=good-code&state=forged", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/", loc.Path)
	require.Contains(t, loc.Query().Get("registration_error"), "Security validation failed")

	// la cuenta ya no existe y la sesión se cerró
	resp = h.do(t, http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/api/auth/login", `{"email":"bob@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// el email queda libre para reintentar
	h.register(t, "bob@example.com")
}

func TestRegistrationRollsBackOnInvalidGrant(t *testing.T) {
	h := newHarness(t)
	state := h.register(t, "carla@example.com")

	resp := h.do(t, http.MethodGet, "/auth/huggingface/callback?code=stale&state="+url.QueryEscape(state), "")
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/", loc.Path)
	require.Contains(t, loc.Query().Get("registration_error"), "Authorization code is invalid or has expired")
}

func TestReconnectFailureKeepsAccount(t *testing.T) {
	h := newHarness(t)
	h.register(t, "dan@example.com")

	// reconnect: /connect borra el marker de registro
	resp := h.do(t, http.MethodGet, "/api/huggingface/connect", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Location"), "/oauth/authorize")

	resp = h.do(t, http.MethodGet, "/auth/huggingface/callback?error=access_denied&error_description=User+cancelled", "")
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/dashboard", loc.Path)
	require.Equal(t, "User cancelled", loc.Query().Get("huggingface_error"))

	resp = h.do(t, http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterValidationAndDuplicates(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/auth/register", `{"email":"x@y.z","password":"123"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e map[string]string
	decode(t, resp, &e)
	require.Equal(t, "Password must be at least 6 characters", e["message"])

	h.register(t, "eva@example.com")
	resp = h.do(t, http.MethodPost, "/api/auth/register", `{"email":"eva@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLoginLogout(t *testing.T) {
	h := newHarness(t)
	h.register(t, "fer@example.com")
	resp := h.do(t, http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/auth/login", `{"email":"FER@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		HuggingFaceConnected bool `json:"huggingface_connected"`
	}
	decode(t, resp, &body)
	require.False(t, body.HuggingFaceConnected)

	resp = h.do(t, http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCallbackWithoutSession(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/auth/huggingface/callback?code=good-code&state=x", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, _ := url.Parse(resp.Header.Get("Location"))
	require.Equal(t, "http", loc.Scheme)
	require.Equal(t, "front.test", loc.Host)
	require.Contains(t, loc.Query().Get("auth_error"), "You must be logged in")
}

func TestReadyzAndMetrics(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(b), "http_requests_total")
}
