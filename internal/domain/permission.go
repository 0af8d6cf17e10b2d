package domain

// Action is a normalized permission verb.
type Action string

const (
	ActionAdd    Action = "add"
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// actionAliases maps every accepted spelling onto its normalized Action.
// Unrecognized spellings resolve to deny, never to an error.
var actionAliases = map[string]Action{
	"add":    ActionAdd,
	"create": ActionAdd,
	"view":   ActionView,
	"read":   ActionView,
	"edit":   ActionEdit,
	"update": ActionEdit,
	"delete": ActionDelete,
	"remove": ActionDelete,
}

// NormalizeAction resolves a permission alias. ok is false for unknown
// aliases; callers must treat that as a denial.
func NormalizeAction(alias string) (Action, bool) {
	a, ok := actionAliases[alias]
	return a, ok
}

// Console module names used in permission matrices.
const (
	ModuleFarmer        = "FARMER"
	ModuleEmployee      = "EMPLOYEE"
	ModuleFPO           = "FPO"
	ModuleKYC           = "KYC"
	ModuleConfiguration = "CONFIGURATION"
)

// ModulePermission is the fixed capability record for one console module.
type ModulePermission struct {
	Module    string `json:"module_name"`
	CanAdd    bool   `json:"can_add"`
	CanView   bool   `json:"can_view"`
	CanEdit   bool   `json:"can_edit"`
	CanDelete bool   `json:"can_delete"`
}

// Allows reports whether the record grants the given normalized action.
func (p ModulePermission) Allows(action Action) bool {
	switch action {
	case ActionAdd:
		return p.CanAdd
	case ActionView:
		return p.CanView
	case ActionEdit:
		return p.CanEdit
	case ActionDelete:
		return p.CanDelete
	default:
		return false
	}
}

// Any reports whether at least one capability is granted.
func (p ModulePermission) Any() bool {
	return p.CanAdd || p.CanView || p.CanEdit || p.CanDelete
}

// PermissionMatrix is the per-role capability table resolved for the current
// session. Module order is whatever the server returned and stays stable for
// the lifetime of one session.
type PermissionMatrix struct {
	Role    Role               `json:"role"`
	Modules []ModulePermission `json:"modules"`
}

// Find returns the permission record for a module, if present.
func (m *PermissionMatrix) Find(module string) (ModulePermission, bool) {
	if m == nil {
		return ModulePermission{}, false
	}
	for _, p := range m.Modules {
		if p.Module == module {
			return p, true
		}
	}
	return ModulePermission{}, false
}
