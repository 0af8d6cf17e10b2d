package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/agriview/console-gateway/internal/domain"
	"github.com/agriview/console-gateway/internal/guard"
	"github.com/agriview/console-gateway/internal/rbac"
	"github.com/agriview/console-gateway/internal/session"
	"github.com/agriview/console-gateway/internal/transport"
)

// ConsoleHandler serves the guarded console surface: fragment visibility
// decisions and the admin-only configuration view.
type ConsoleHandler struct {
	sessions *session.Manager
	resolver *rbac.Resolver
	client   *transport.Client
	log      *zap.Logger
}

// NewConsoleHandler creates a console handler.
func NewConsoleHandler(sessions *session.Manager, resolver *rbac.Resolver, client *transport.Client, log *zap.Logger) *ConsoleHandler {
	return &ConsoleHandler{sessions: sessions, resolver: resolver, client: client, log: log}
}

// Modules handles GET /v1/console/modules: the navigation entries the
// current user may see at all.
func (h *ConsoleHandler) Modules(c *fiber.Ctx) error {
	if err := h.resolver.Load(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":     "permissions are unavailable, retry",
			"retryable": true,
		})
	}
	return c.JSON(fiber.Map{"modules": h.resolver.AccessibleModules()})
}

// Fragment handles GET /v1/console/fragments/:module. The response is one of
// three distinct states: loading (neutral indicator), allow, or deny with a
// fallback message. Protected markup is only ever sent on allow.
func (h *ConsoleHandler) Fragment(c *fiber.Ctx) error {
	check := guard.FragmentCheck{
		Module: c.Params("module"),
		Action: c.Query("action"),
	}

	roleQuery := c.Query("role")
	check.Role = domain.ParseRole(roleQuery)

	var decision guard.Decision
	if roleQuery != "" && check.Role == domain.RoleNone {
		// A required role outside the closed set is unsatisfiable: no user
		// ever holds it, so the fragment denies rather than dropping the
		// requirement.
		decision = guard.DecisionDeny
	} else {
		decision = guard.Evaluate(h.sessions, h.resolver, check)
	}
	body := fiber.Map{"decision": decision.String()}
	if decision == guard.DecisionDeny {
		fallback := c.Query("fallback")
		if fallback == "" {
			fallback = guard.AccessDeniedNotice
		}
		body["fallback"] = fallback
	}
	return c.JSON(body)
}

// Configuration handles GET /v1/console/config. The upstream call is marked
// configuration-class: a 403 there is an expected restriction, logged at
// warning level, and never costs the caller their session.
func (h *ConsoleHandler) Configuration(c *fiber.Ctx) error {
	resp, err := h.client.Do(c.UserContext(), transport.Request{
		Method:             http.MethodGet,
		Path:               "/api/v1/configuration",
		ConfigurationClass: true,
		SourceRoute:        sourceRoute(c),
	})
	if err != nil {
		return err
	}
	c.Set("Content-Type", "application/json")
	return c.Status(resp.StatusCode).Send(resp.Body)
}
