package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// FetchUserInfo obtiene el perfil del dueño del access token.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "userinfo", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, &UserInfoError{Status: resp.StatusCode}
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return &info, nil
}

// RequestOptions son las opciones de una llamada a la API de recursos.
type RequestOptions struct {
	Method string // default GET
	Header http.Header
	Body   io.Reader
}

// CallResourceAPI hace una llamada autenticada. Endpoints relativos se resuelven
// contra la API de inferencia; los que empiezan con "http" se usan tal cual.
// Los headers del caller pisan a los default salvo Authorization. Un solo intento.
// El caller cierra el body de la respuesta.
func (c *Client) CallResourceAPI(ctx context.Context, endpoint string, opts RequestOptions, accessToken string) (*http.Response, error) {
	target := c.ResolveEndpoint(endpoint)

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, opts.Body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range opts.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "resource", Err: err}
	}
	return resp, nil
}

// ResolveEndpoint arma la URL final de un endpoint de la API de recursos.
func (c *Client) ResolveEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "http") {
		return endpoint
	}
	base := strings.TrimRight(c.cfg.InferenceURL, "/")
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return base + endpoint
}
