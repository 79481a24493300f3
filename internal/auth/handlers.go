package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/phobologic/codegraph/internal/config"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// HandleLogin exchanges credentials for tokens.
//
// In jwt mode the identifier is tried as a username and then as an email.
// In session mode the backend's Set-Cookie headers are relayed unchanged.
func (p *Proxy) HandleLogin(c *gin.Context) {
	var req loginRequest
	_ = c.ShouldBindJSON(&req)
	if req.Identifier == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing credentials"})
		return
	}

	if p.cfg.Mode == config.AuthModeSession {
		p.sessionLogin(c, req)
		return
	}

	tries := []map[string]string{
		{"username": req.Identifier, "password": req.Password},
		{"email": req.Identifier, "password": req.Password},
	}
	var last *backendReply
	for _, payload := range tries {
		reply, err := p.do(c.Request.Context(), request{method: http.MethodPost, path: p.cfg.TokenPath, body: payload})
		if err != nil {
			p.logger.Warn("identity backend unreachable", slog.String("path", p.cfg.TokenPath), slog.String("error", err.Error()))
			networkError(c, err)
			return
		}
		if reply.OK {
			p.finishLogin(c, reply)
			return
		}
		last = reply
		if _, retry := retryStatuses[reply.Status]; !retry {
			break
		}
	}

	status := last.Status
	if status == 0 {
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"error": "Invalid credentials", "backend": last})
}

func (p *Proxy) finishLogin(c *gin.Context, reply *backendReply) {
	access := reply.field("access", "token", "access_token")
	if access == "" {
		c.JSON(http.StatusBadGateway, gin.H{"error": "No access token in identity response", "backend": reply})
		return
	}
	p.setTokenCookie(c, AccessCookie, access)
	if refresh := reply.field("refresh", "refresh_token"); refresh != "" {
		p.setTokenCookie(c, RefreshCookie, refresh)
	}

	// The current user is a convenience; login succeeds without it.
	me, err := p.do(c.Request.Context(), request{method: http.MethodGet, path: p.cfg.MePath, bearer: access})
	if err == nil && me.OK {
		c.JSON(http.StatusOK, gin.H{"ok": true, "user": me.Body()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (p *Proxy) sessionLogin(c *gin.Context, req loginRequest) {
	reply, err := p.do(c.Request.Context(), request{
		method: http.MethodPost,
		path:   "/accounts/login/",
		body:   map[string]string{"username": req.Identifier, "password": req.Password},
	})
	if err != nil {
		networkError(c, err)
		return
	}
	for _, v := range reply.header.Values("Set-Cookie") {
		c.Writer.Header().Add("Set-Cookie", v)
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":      reply.OK,
		"backend": gin.H{"status": reply.Status, "body": reply.Body()},
	})
}

// HandleRegister forwards a registration. When only an email is given, a
// second attempt derives the username from its local part.
func (p *Proxy) HandleRegister(c *gin.Context) {
	incoming := map[string]any{}
	_ = c.ShouldBindJSON(&incoming)

	candidates := []map[string]any{incoming}
	username, _ := incoming["username"].(string)
	email, _ := incoming["email"].(string)
	password, _ := incoming["password"].(string)
	if username == "" && email != "" && password != "" {
		local, _, _ := strings.Cut(email, "@")
		candidates = append(candidates, map[string]any{"username": local, "email": email, "password": password})
	}

	var firstBad *backendReply
	for _, payload := range candidates {
		reply, err := p.do(c.Request.Context(), request{method: http.MethodPost, path: p.cfg.RegisterPath, body: payload})
		if err != nil {
			reply = &backendReply{Text: "Network error: " + err.Error()}
		}
		if reply.OK {
			c.JSON(http.StatusOK, gin.H{"ok": true, "data": reply.Body()})
			return
		}
		if firstBad == nil {
			firstBad = reply
		}
		if _, retry := retryStatuses[reply.Status]; reply.Status != 0 && !retry {
			break
		}
	}

	status := firstBad.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": "Registration failed", "backend": firstBad})
}

// HandleRegisterInfo lets clients probe that the route exists.
func (p *Proxy) HandleRegisterInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "route": "/api/auth/register"})
}

// HandleRefresh trades the refresh cookie for a new access token.
func (p *Proxy) HandleRefresh(c *gin.Context) {
	refresh, err := c.Cookie(RefreshCookie)
	if err != nil || refresh == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No refresh token"})
		return
	}

	reply, err := p.do(c.Request.Context(), request{
		method: http.MethodPost,
		path:   p.cfg.RefreshPath,
		body:   map[string]string{"refresh": refresh},
	})
	if err != nil {
		networkError(c, err)
		return
	}
	if !reply.OK {
		msg := reply.field("detail")
		if msg == "" {
			msg = "Refresh failed"
		}
		c.JSON(reply.Status, gin.H{
			"error":   msg,
			"backend": gin.H{"status": reply.Status, "body": reply.Body()},
		})
		return
	}

	if access := reply.field("access", "token", "access_token"); access != "" {
		p.setTokenCookie(c, AccessCookie, access)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// HandleLogout clears the token cookies. In session mode the backend is told
// as well; its answer does not matter.
func (p *Proxy) HandleLogout(c *gin.Context) {
	if p.cfg.Mode == config.AuthModeSession {
		if _, err := p.do(c.Request.Context(), request{method: http.MethodPost, path: p.cfg.LogoutPath}); err != nil {
			p.logger.Debug("backend logout failed", slog.String("error", err.Error()))
		}
	}
	p.clearTokenCookies(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// HandleMe returns the backend's view of the current user.
func (p *Proxy) HandleMe(c *gin.Context) {
	access := ""
	for _, name := range []string{AccessCookie, "access", "token"} {
		if v, err := c.Cookie(name); err == nil && v != "" {
			access = v
			break
		}
	}
	if access == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "No token"})
		return
	}

	reply, err := p.do(c.Request.Context(), request{method: http.MethodGet, path: p.cfg.MePath, bearer: access})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if !reply.OK {
		c.JSON(reply.Status, gin.H{"ok": false, "status": reply.Status, "data": reply.Body()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": reply.Body()})
}

type probe struct {
	OK      bool              `json:"ok"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	JSON    any               `json:"json,omitempty"`
	Text    string            `json:"text,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// HandleDebug reports whether the backend endpoints the proxy relies on are
// reachable.
func (p *Proxy) HandleDebug(c *gin.Context) {
	if p.cfg.BaseURL == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Missing identity backend URL"})
		return
	}

	ctx := c.Request.Context()
	check := func(method, path string) probe {
		reply, err := p.do(ctx, request{method: method, path: path})
		if err != nil {
			return probe{Error: err.Error()}
		}
		headers := make(map[string]string, len(reply.header))
		for k := range reply.header {
			headers[strings.ToLower(k)] = reply.header.Get(k)
		}
		return probe{OK: reply.OK, Status: reply.Status, Headers: headers, JSON: reply.JSON, Text: reply.Text}
	}

	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"env": gin.H{
			"baseURL":      p.cfg.BaseURL,
			"authMode":     p.cfg.Mode,
			"tokenPath":    p.cfg.TokenPath,
			"registerPath": p.cfg.RegisterPath,
			"mePath":       p.cfg.MePath,
		},
		"reachability": gin.H{
			"base":     check(http.MethodGet, ""),
			"token":    check(http.MethodOptions, p.cfg.TokenPath),
			"register": check(http.MethodOptions, p.cfg.RegisterPath),
			"me":       check(http.MethodGet, p.cfg.MePath),
		},
	})
}
