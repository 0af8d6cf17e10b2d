// Package rbac resolves the role/module/action capability table for the
// current session and answers every authorization query with a total,
// default-deny answer.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/agriview/console-gateway/internal/domain"
	"github.com/agriview/console-gateway/internal/session"
)

// MatrixSource fetches the permission matrix for a user from the platform.
// Implemented by the authenticated transport.
type MatrixSource interface {
	FetchMatrix(ctx context.Context, userName string) (*domain.PermissionMatrix, error)
}

// Resolver caches one permission matrix per authenticated session. Every
// query is fail-closed: no matrix, unknown module or unknown alias all
// answer false. A failed load parks the resolver in a retryable error state
// without touching the session.
type Resolver struct {
	sessions *session.Manager
	source   MatrixSource
	cache    MatrixCache
	cacheTTL time.Duration
	log      *zap.Logger
	group    singleflight.Group

	mu          sync.Mutex
	matrix      *domain.PermissionMatrix
	loadErr     error
	loading     bool
	loadedEpoch string
}

// NewResolver creates a resolver bound to one session manager. cache may be
// nil when no warm cache is configured.
func NewResolver(sessions *session.Manager, source MatrixSource, cache MatrixCache, cacheTTL time.Duration, log *zap.Logger) *Resolver {
	return &Resolver{
		sessions: sessions,
		source:   source,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// Load fetches the matrix for the current session if it is not resolved yet.
// Concurrent calls for the same session collapse into one fetch. A result
// arriving after the session changed is discarded, never applied.
func (r *Resolver) Load(ctx context.Context) error {
	user, ok := r.sessions.CurrentUser()
	if !ok {
		return domain.ErrNotAuthenticated
	}
	epoch := r.sessions.Epoch()

	r.mu.Lock()
	if r.loadedEpoch == epoch && r.matrix != nil {
		r.mu.Unlock()
		return nil
	}
	r.loading = true
	r.mu.Unlock()

	result, err, _ := r.group.Do(epoch, func() (any, error) {
		return r.fetch(ctx, user.UserName)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = false

	// The load was tagged with the epoch it was issued for; if the session
	// moved on underneath it, the result belongs to nobody.
	if current := r.sessions.Epoch(); current != epoch {
		r.log.Debug("discarding permission load for stale session",
			zap.String("issued_epoch", epoch))
		return nil
	}

	if err != nil {
		r.matrix = nil
		r.loadErr = fmt.Errorf("%w: %w", domain.ErrPermissionLoad, err)
		r.loadedEpoch = epoch
		r.log.Warn("permission matrix load failed",
			zap.String("user", user.UserName), zap.Error(err))
		return r.loadErr
	}

	r.matrix = result.(*domain.PermissionMatrix)
	r.loadErr = nil
	r.loadedEpoch = epoch
	r.log.Info("permission matrix resolved",
		zap.String("user", user.UserName),
		zap.Int("modules", len(r.matrix.Modules)))
	return nil
}

func (r *Resolver) fetch(ctx context.Context, userName string) (*domain.PermissionMatrix, error) {
	if r.cache != nil {
		matrix, err := r.cache.Get(ctx, userName)
		if err == nil {
			return matrix, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			r.log.Warn("permission cache read failed", zap.Error(err))
		}
	}

	matrix, err := r.source.FetchMatrix(ctx, userName)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, userName, matrix, r.cacheTTL); err != nil {
			r.log.Warn("permission cache write failed", zap.Error(err))
		}
	}
	return matrix, nil
}

// Refresh discards the cached matrix and loads again; used after roles
// change server-side.
func (r *Resolver) Refresh(ctx context.Context) error {
	user, ok := r.sessions.CurrentUser()
	if !ok {
		return domain.ErrNotAuthenticated
	}
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, user.UserName); err != nil {
			r.log.Warn("permission cache invalidation failed", zap.Error(err))
		}
	}
	r.mu.Lock()
	r.matrix = nil
	r.loadErr = nil
	r.loadedEpoch = ""
	r.mu.Unlock()
	return r.Load(ctx)
}

// current returns the matrix iff it belongs to the live session.
func (r *Resolver) current() *domain.PermissionMatrix {
	epoch := r.sessions.Epoch()
	if epoch == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadedEpoch != epoch {
		return nil
	}
	return r.matrix
}

// HasPermission reports whether the signed-in user may perform the aliased
// action on a module. Default-deny, never errors.
func (r *Resolver) HasPermission(module, alias string) bool {
	action, ok := domain.NormalizeAction(alias)
	if !ok {
		return false
	}
	perm, ok := r.current().Find(module)
	if !ok {
		return false
	}
	return perm.Allows(action)
}

// HasAnyPermission reports whether any capability is granted on a module.
func (r *Resolver) HasAnyPermission(module string) bool {
	perm, ok := r.current().Find(module)
	return ok && perm.Any()
}

// HasRole checks the signed-in user's role, exact and case-sensitive.
func (r *Resolver) HasRole(role domain.Role) bool {
	user, ok := r.sessions.CurrentUser()
	return ok && user.HasRole(role)
}

// IsAdmin reports whether the user holds the ADMIN role.
func (r *Resolver) IsAdmin() bool { return r.HasRole(domain.RoleAdmin) }

// IsSuperAdmin reports whether the user holds the SUPER_ADMIN role.
func (r *Resolver) IsSuperAdmin() bool { return r.HasRole(domain.RoleSuperAdmin) }

// AccessibleModules lists modules with at least one capability, in the
// matrix's own order, which is stable for the session.
func (r *Resolver) AccessibleModules() []string {
	matrix := r.current()
	if matrix == nil {
		return nil
	}
	modules := make([]string, 0, len(matrix.Modules))
	for _, p := range matrix.Modules {
		if p.Any() {
			modules = append(modules, p.Module)
		}
	}
	return modules
}

// Loading reports whether the matrix for the live session is still being
// resolved (or has not been requested yet). Guards render a neutral loading
// state on true instead of an allow or a deny.
func (r *Resolver) Loading() bool {
	epoch := r.sessions.Epoch()
	if epoch == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading || r.loadedEpoch != epoch
}

// Err exposes the last load failure for the live session, if any, so the UI
// can surface a retryable error.
func (r *Resolver) Err() error {
	epoch := r.sessions.Epoch()
	if epoch == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadedEpoch != epoch {
		return nil
	}
	return r.loadErr
}
