package accounts

import goerrors "github.com/goliatone/go-errors"

// AccountRole is the account's primary role, fixed at signup.
type AccountRole string

const (
	// RoleDriver offers rides.
	RoleDriver AccountRole = "driver"
	// RolePassenger books rides.
	RolePassenger AccountRole = "passenger"
	// RoleHybrid can act as either; the owner picks a dashboard per session.
	RoleHybrid AccountRole = "hybrid"
)

// IsValid checks the role against the predefined set.
func (r AccountRole) IsValid() bool {
	switch r {
	case RoleDriver, RolePassenger, RoleHybrid:
		return true
	default:
		return false
	}
}

// ParseAccountRole safely parses a string into an AccountRole.
func ParseAccountRole(raw string) (AccountRole, bool) {
	role := AccountRole(raw)
	return role, role.IsValid()
}

// Dashboard identifies a post-login destination.
type Dashboard string

const (
	DashboardDriver    Dashboard = "driver"
	DashboardPassenger Dashboard = "passenger"
	DashboardAdmin     Dashboard = "admin"
)

// ErrDashboardChoiceRequired is returned when more than one dashboard is
// reachable: ambiguity is resolved by explicit user choice, never inferred.
var ErrDashboardChoiceRequired = goerrors.New("multiple dashboards available, an explicit choice is required", goerrors.CategoryValidation).
	WithTextCode("DASHBOARD_CHOICE_REQUIRED")

// ReachableDashboards computes the set of dashboards a session may enter.
// The admin capability comes from the session claim, not the profile role.
func ReachableDashboards(role AccountRole, isAdmin bool) []Dashboard {
	var out []Dashboard
	if role == RoleDriver || role == RoleHybrid {
		out = append(out, DashboardDriver)
	}
	if role == RolePassenger || role == RoleHybrid {
		out = append(out, DashboardPassenger)
	}
	if isAdmin {
		out = append(out, DashboardAdmin)
	}
	return out
}

// ResolveDashboard routes directly when exactly one dashboard is reachable.
// With several candidates it returns ErrDashboardChoiceRequired; the caller
// confirms the choice through ChooseDashboard.
func ResolveDashboard(role AccountRole, isAdmin bool) (Dashboard, error) {
	reachable := ReachableDashboards(role, isAdmin)
	switch len(reachable) {
	case 0:
		return "", goerrors.New("account has an unknown or invalid role", goerrors.CategoryAuth).
			WithTextCode(TextCodeInvalidRole).
			WithMetadata(map[string]any{"role": role})
	case 1:
		return reachable[0], nil
	default:
		return "", ErrDashboardChoiceRequired.WithMetadata(map[string]any{
			"available": reachable,
		})
	}
}

// ChooseDashboard validates an explicit selection against the reachable set.
func ChooseDashboard(role AccountRole, isAdmin bool, choice Dashboard) (Dashboard, error) {
	for _, d := range ReachableDashboards(role, isAdmin) {
		if d == choice {
			return d, nil
		}
	}
	return "", goerrors.New("selected dashboard is not available for this account", goerrors.CategoryAuth).
		WithTextCode("DASHBOARD_NOT_AVAILABLE").
		WithMetadata(map[string]any{"choice": choice, "role": role, "admin": isAdmin})
}
