// Package auth proxies login, registration and session calls to an external
// identity backend and keeps the resulting tokens in HttpOnly cookies.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phobologic/codegraph/internal/config"
)

// Cookie names.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// retryStatuses are backend answers after which the next credential shape is tried.
var retryStatuses = map[int]struct{}{
	http.StatusBadRequest:          {},
	http.StatusUnauthorized:        {},
	http.StatusUnprocessableEntity: {},
}

// Proxy forwards auth requests to the identity backend.
type Proxy struct {
	cfg    config.IdentityConfig
	secure bool
	client *http.Client
	logger *slog.Logger
}

// NewProxy creates a Proxy. secure marks cookies Secure and should be set in
// production. A nil logger means slog.Default().
func NewProxy(cfg config.IdentityConfig, secure bool, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		cfg:    cfg,
		secure: secure,
		client: &http.Client{
			Timeout: cfg.Timeout,
			// Session logins answer with a redirect that carries the cookie.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// RegisterRoutes mounts the proxy under rg/auth.
func RegisterRoutes(rg *gin.RouterGroup, p *Proxy) {
	auth := rg.Group("/auth")
	{
		auth.POST("/login", p.HandleLogin)
		auth.POST("/register", p.HandleRegister)
		auth.GET("/register", p.HandleRegisterInfo)
		auth.POST("/refresh", p.HandleRefresh)
		auth.POST("/logout", p.HandleLogout)
		auth.GET("/me", p.HandleMe)
		auth.GET("/debug", p.HandleDebug)
	}
}

// backendReply is a decoded identity backend response.
type backendReply struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status"`
	JSON   any    `json:"json"`
	Text   string `json:"text"`

	header http.Header
}

// Body returns the decoded JSON body, or the raw text when it was not JSON.
func (r *backendReply) Body() any {
	if r.JSON != nil {
		return r.JSON
	}
	return r.Text
}

// field returns the first non-empty string among keys of a JSON object body.
func (r *backendReply) field(keys ...string) string {
	obj, ok := r.JSON.(map[string]any)
	if !ok {
		return ""
	}
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

type request struct {
	method string
	path   string
	body   any
	bearer string
}

func (p *Proxy) url(path string) string {
	return p.cfg.BaseURL + path
}

// do sends req to the backend. A non-nil error means the backend could not
// be reached; HTTP error statuses are reported in the reply.
func (p *Proxy) do(ctx context.Context, req request) (*backendReply, error) {
	if p.cfg.BaseURL == "" {
		return nil, errors.New("identity backend URL is not configured")
	}

	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, p.url(req.path), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	reply := &backendReply{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Text:   string(raw),
		header: resp.Header,
	}
	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		reply.JSON = decoded
	}
	return reply, nil
}

func (p *Proxy) setTokenCookie(c *gin.Context, name, value string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, 0, "/", "", p.secure, true)
}

func (p *Proxy) clearTokenCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookie, "", -1, "/", "", p.secure, true)
	c.SetCookie(RefreshCookie, "", -1, "/", "", p.secure, true)
}

func networkError(c *gin.Context, err error) {
	c.JSON(http.StatusBadGateway, gin.H{
		"error":  "Network error to identity backend",
		"detail": err.Error(),
	})
}
