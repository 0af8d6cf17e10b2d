package handler

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/agriview/console-gateway/internal/domain"
	"github.com/agriview/console-gateway/internal/rbac"
	"github.com/agriview/console-gateway/internal/session"
	"github.com/agriview/console-gateway/internal/transport"
)

// consoleRouteHeader carries the console route on whose behalf a gateway
// call is made; the transport's 401 rule consults it.
const consoleRouteHeader = "X-Console-Route"

func sourceRoute(c *fiber.Ctx) string {
	return c.Get(consoleRouteHeader)
}

// SessionHandler exposes the session lifecycle to the console UI.
type SessionHandler struct {
	sessions *session.Manager
	resolver *rbac.Resolver
	client   *transport.Client
	log      *zap.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(sessions *session.Manager, resolver *rbac.Resolver, client *transport.Client, log *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, resolver: resolver, client: client, log: log}
}

type loginRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

type loginPayload struct {
	Token string `json:"token"`
	User  struct {
		UserName            string `json:"user_name"`
		Name                string `json:"name"`
		Email               string `json:"email"`
		Role                string `json:"role"`
		Status              string `json:"status"`
		ForcePasswordChange bool   `json:"force_password_change"`
	} `json:"user"`
}

// Login handles POST /v1/session/login. The upstream call is marked
// credential-issuing so a rejected password never cascades into a forced
// sign-out of whoever was signed in before.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil || req.UserName == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_name and password are required",
		})
	}

	resp, err := h.client.Do(c.UserContext(), transport.Request{
		Method:            http.MethodPost,
		Path:              "/api/v1/auth/login",
		Body:              req,
		CredentialIssuing: true,
		SourceRoute:       sourceRoute(c),
	})
	if err != nil {
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid credentials",
			})
		}
		h.log.Error("login call failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "sign-in is temporarily unavailable",
		})
	}

	var payload loginPayload
	if err := resp.DecodeJSON(&payload); err != nil || payload.Token == "" {
		h.log.Error("login response undecodable", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "sign-in is temporarily unavailable",
		})
	}

	user := &domain.CachedUser{
		UserName:            payload.User.UserName,
		Name:                payload.User.Name,
		Email:               payload.User.Email,
		Role:                domain.ParseRole(payload.User.Role),
		Status:              payload.User.Status,
		ForcePasswordChange: payload.User.ForcePasswordChange,
	}
	h.sessions.Login(user, payload.Token)

	// Warm the matrix for the new session. A failure here is retryable and
	// must not fail the sign-in itself.
	if err := h.resolver.Load(c.UserContext()); err != nil {
		h.log.Warn("permission preload failed after login", zap.Error(err))
	}

	return c.JSON(fiber.Map{
		"user":                  user,
		"force_password_change": user.ForcePasswordChange,
	})
}

// Logout handles POST /v1/session/logout. Calling it signed out is a no-op.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	h.sessions.Logout()
	return c.JSON(fiber.Map{"status": "signed_out"})
}

// Me handles GET /v1/session/me.
func (h *SessionHandler) Me(c *fiber.Ctx) error {
	user, ok := h.sessions.CurrentUser()
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "not signed in",
		})
	}
	return c.JSON(fiber.Map{"user": user})
}

// Permissions handles GET /v1/session/permissions. A failed load answers
// with a retryable error while every permission stays denied; the session is
// untouched.
func (h *SessionHandler) Permissions(c *fiber.Ctx) error {
	if !h.sessions.IsAuthenticated() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "not signed in",
		})
	}
	if err := h.resolver.Load(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":     "permissions are unavailable, retry",
			"retryable": true,
		})
	}
	return c.JSON(fiber.Map{
		"is_admin":           h.resolver.IsAdmin(),
		"is_super_admin":     h.resolver.IsSuperAdmin(),
		"accessible_modules": h.resolver.AccessibleModules(),
	})
}

// RefreshPermissions handles POST /v1/session/permissions/refresh; used
// after roles change server-side.
func (h *SessionHandler) RefreshPermissions(c *fiber.Ctx) error {
	if err := h.resolver.Refresh(c.UserContext()); err != nil {
		if errors.Is(err, domain.ErrNotAuthenticated) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "not signed in",
			})
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":     "permissions are unavailable, retry",
			"retryable": true,
		})
	}
	return c.JSON(fiber.Map{
		"accessible_modules": h.resolver.AccessibleModules(),
	})
}
