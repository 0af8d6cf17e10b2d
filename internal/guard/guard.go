// Package guard gates whole routes and partial UI fragments on the session
// and the resolved permission matrix. Denials redirect or render a fallback;
// protected content is never emitted on a failed check, not even briefly.
package guard

import (
	"github.com/gofiber/fiber/v2"

	"github.com/agriview/console-gateway/internal/domain"
	"github.com/agriview/console-gateway/internal/rbac"
	"github.com/agriview/console-gateway/internal/session"
)

// RequireSession denies unauthenticated callers with a redirect to the
// sign-in location. The wrapped handler never runs on denial.
func RequireSession(sessions *session.Manager, signInPath string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !sessions.IsAuthenticated() {
			return c.Redirect(signInPath, fiber.StatusSeeOther)
		}
		return c.Next()
	}
}

// RequireRoles denies callers whose role is not in the allowed set. An
// unauthenticated caller is denied the same way.
func RequireRoles(sessions *session.Manager, signInPath string, allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		user, ok := sessions.CurrentUser()
		if !ok {
			return c.Redirect(signInPath, fiber.StatusSeeOther)
		}
		if _, exists := allowedSet[user.Role]; !exists {
			return c.Redirect(signInPath, fiber.StatusSeeOther)
		}
		return c.Next()
	}
}

// Decision is the tri-state outcome for a guarded UI fragment. Loading is a
// distinct visual state: neither the protected content nor a denial message.
type Decision int

const (
	DecisionLoading Decision = iota
	DecisionAllow
	DecisionDeny
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionDeny:
		return "deny"
	default:
		return "loading"
	}
}

// FragmentCheck describes what a UI fragment requires. Zero values mean "not
// specified"; at least one of Role or Module is set by callers.
type FragmentCheck struct {
	// Role, when set, must match the signed-in user's role exactly.
	Role domain.Role

	// Module names the console module the fragment belongs to.
	Module string

	// Action, when set together with Module, names the specific permission
	// alias required. With Module alone, any capability on the module
	// suffices.
	Action string
}

// Evaluate runs the fragment checks in order and stops at the first failure:
// role, then specific permission, then any-permission-on-module. While the
// resolver is still loading it returns DecisionLoading.
func Evaluate(sessions *session.Manager, resolver *rbac.Resolver, check FragmentCheck) Decision {
	if !sessions.IsAuthenticated() {
		return DecisionDeny
	}
	if resolver.Loading() {
		return DecisionLoading
	}

	if check.Role != domain.RoleNone && !resolver.HasRole(check.Role) {
		return DecisionDeny
	}
	if check.Module != "" && check.Action != "" {
		if !resolver.HasPermission(check.Module, check.Action) {
			return DecisionDeny
		}
		return DecisionAllow
	}
	if check.Module != "" {
		if !resolver.HasAnyPermission(check.Module) {
			return DecisionDeny
		}
	}
	return DecisionAllow
}

// AccessDeniedNotice is the standard fallback rendered when a fragment is
// denied and the caller supplied no fallback of its own.
const AccessDeniedNotice = "You do not have permission to view this section."
