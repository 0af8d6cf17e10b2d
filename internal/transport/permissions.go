package transport

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/agriview/console-gateway/internal/domain"
)

// matrixPayload is the loose upstream shape; it is converted to the closed
// domain types right here at the boundary.
type matrixPayload struct {
	Role    string `json:"role"`
	Modules []struct {
		ModuleName string `json:"module_name"`
		CanAdd     bool   `json:"can_add"`
		CanView    bool   `json:"can_view"`
		CanEdit    bool   `json:"can_edit"`
		CanDelete  bool   `json:"can_delete"`
	} `json:"modules"`
}

// FetchMatrix loads the permission matrix for a user. An unknown role in the
// response collapses to the no-access variant instead of carrying arbitrary
// role text into the system.
func (c *Client) FetchMatrix(ctx context.Context, userName string) (*domain.PermissionMatrix, error) {
	resp, err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/api/v1/users/%s/permissions", userName),
	})
	if err != nil {
		return nil, err
	}

	var payload matrixPayload
	if err := resp.DecodeJSON(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode permission matrix: %w", err)
	}

	role := domain.ParseRole(payload.Role)
	if role == domain.RoleNone {
		c.log.Warn("unknown role in permission matrix, defaulting to no access",
			zap.String("user", userName),
			zap.String("role", payload.Role))
		return &domain.PermissionMatrix{Role: domain.RoleNone}, nil
	}

	matrix := &domain.PermissionMatrix{
		Role:    role,
		Modules: make([]domain.ModulePermission, 0, len(payload.Modules)),
	}
	for _, m := range payload.Modules {
		matrix.Modules = append(matrix.Modules, domain.ModulePermission{
			Module:    m.ModuleName,
			CanAdd:    m.CanAdd,
			CanView:   m.CanView,
			CanEdit:   m.CanEdit,
			CanDelete: m.CanDelete,
		})
	}
	return matrix, nil
}
