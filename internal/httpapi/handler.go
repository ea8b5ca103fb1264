// Package httpapi implements the four auth-internal HTTP endpoints
// spec.md §6 calls out by name — /api/context, /api/login,
// /api/logout, /api/users/me — the ones the auth gate always passes
// through regardless of allow-list configuration. Grounded on the
// teacher's AuthHandler (internal/auth/handlers.go): a thin gin
// handler wrapping a user store and the session mechanism, returning
// JSON envelopes and never a password hash.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wsrelay/wsrelay/internal/authgate"
	"github.com/wsrelay/wsrelay/internal/devctx"
	"github.com/wsrelay/wsrelay/internal/session"
	"github.com/wsrelay/wsrelay/internal/userstore"
)

// Handler serves the auth-internal HTTP surface.
type Handler struct {
	Sessions *session.Store
	Users    *userstore.Store
	Bearer   *authgate.BearerManager // optional
	DevCtx   *devctx.Sink            // optional
}

func New(sessions *session.Store, users *userstore.Store) *Handler {
	return &Handler{Sessions: sessions, Users: users}
}

// RegisterRoutes mounts the four endpoints on a gin router group,
// following the teacher's RegisterRoutes(group) convention.
func (h *Handler) RegisterRoutes(group gin.IRouter) {
	group.GET("/api/context", h.Context)
	group.POST("/api/login", h.Login)
	group.POST("/api/logout", h.Logout)
	group.GET("/api/users/me", h.UsersMe)
}

func (h *Handler) sessionFor(c *gin.Context) *session.Session {
	if sess, _, ok := h.Sessions.ParseCookie(c.Request); ok {
		return sess
	}
	sess, id, _, err := h.Sessions.GetOrCreate("")
	if err != nil {
		return &session.Session{}
	}
	session.WriteCookie(c.Writer, h.Sessions.CookieName(), id, session.IsSecureRequest(c.Request))
	return sess
}

func (h *Handler) logDevCtx(data map[string]any) {
	if h.DevCtx != nil {
		h.DevCtx.AddHTTP(data)
	}
}

// publicUser strips everything but the fields spec.md §6 names for a
// user record.
func publicUser(u *userstore.User) gin.H {
	return gin.H{
		"username":    u.Username,
		"permissions": u.Permissions,
		"createdAt":   u.CreatedAt,
	}
}

// Context reports the caller's current session state: whether it
// carries a user, and (when it does) the public user record plus
// TOTP step-up status.
func (h *Handler) Context(c *gin.Context) {
	sess := h.sessionFor(c)
	resp := gin.H{
		"sessionId": sess.ID,
		"anonymous": sess.IsAnonymous(),
	}
	if !sess.IsAnonymous() {
		if u, ok := h.Users.GetUserByUsername(*sess.UserID); ok {
			resp["user"] = publicUser(u)
			resp["totpVerified"] = authgate.StepUpVerified(sess)
			resp["stepUpRequired"] = authgate.RequiresStepUp(u)
		}
	}
	h.logDevCtx(gin.H{"path": "/api/context", "session_id": sess.ID})
	c.JSON(http.StatusOK, resp)
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totpCode"`
}

// Login verifies credentials against the user store, binds the
// caller's userid to their session, and completes TOTP step-up when
// the user requires it and a code was submitted.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	u, ok := h.Users.Authenticate(req.Username, req.Password)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	sess := h.sessionFor(c)
	sess.SetUser(u.Username)

	resp := gin.H{"user": publicUser(u)}

	if authgate.RequiresStepUp(u) {
		if req.TOTPCode == "" {
			resp["stepUpRequired"] = true
		} else if !authgate.VerifyStepUp(u, req.TOTPCode, sess) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid TOTP code"})
			return
		} else {
			resp["stepUpRequired"] = false
		}
	}

	if h.Bearer != nil {
		token, err := h.Bearer.Issue(u.Username, u.Permissions.Admin)
		if err == nil {
			resp["bearerToken"] = token
		}
	}

	h.logDevCtx(gin.H{"path": "/api/login", "username": u.Username})
	c.JSON(http.StatusOK, resp)
}

// Logout clears the session's userid without destroying the record
// (spec.md §3: sessions are destroyed only on explicit logout or
// process exit, and logout only clears the userid).
func (h *Handler) Logout(c *gin.Context) {
	if sess, _, ok := h.Sessions.ParseCookie(c.Request); ok {
		sess.Logout()
		h.logDevCtx(gin.H{"path": "/api/logout", "session_id": sess.ID})
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// UsersMe returns the caller's own user record, or 401 when the
// session is anonymous.
func (h *Handler) UsersMe(c *gin.Context) {
	sess := h.sessionFor(c)
	if sess.IsAnonymous() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	u, ok := h.Users.GetUserByUsername(*sess.UserID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, publicUser(u))
}
