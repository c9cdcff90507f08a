// Package permissions provides role capability checks for gated operations.
//
// Roles are flat strings supplied by the external permission catalog via the
// actor context. Checks are case-insensitive; the catalog is not consulted at
// runtime, only the yes/no capability decision is made here.
package permissions

import (
	"strings"
)

// Well-known roles
const (
	RoleOperator  = "operator"
	RoleWarehouse = "warehouse"
	RoleManager   = "manager"
	RoleAdmin     = "admin"
)

// Role sets for gated fulfillment operations
var (
	// ManifestShipRoles may manifest and ship
	ManifestShipRoles = []string{RoleWarehouse, RoleManager, RoleAdmin}

	// MarkDeliveredRoles may mark a shipment delivered
	MarkDeliveredRoles = []string{RoleManager, RoleAdmin}

	// ReserveRoles may commit and release allocations
	ReserveRoles = []string{RoleOperator, RoleWarehouse, RoleManager, RoleAdmin}
)

// HasRole checks whether role is one of the required roles.
// Comparison is case-insensitive.
func HasRole(role string, required []string) bool {
	for _, r := range required {
		if strings.EqualFold(role, r) {
			return true
		}
	}
	return false
}

// HasAnyRole checks whether any of the roles matches a required role.
func HasAnyRole(roles []string, required []string) bool {
	for _, role := range roles {
		if HasRole(role, required) {
			return true
		}
	}
	return false
}

// CanManifestOrShip reports whether the role may manifest or ship a shipment.
func CanManifestOrShip(role string) bool {
	return HasRole(role, ManifestShipRoles)
}

// CanMarkDelivered reports whether the role may mark a shipment delivered.
func CanMarkDelivered(role string) bool {
	return HasRole(role, MarkDeliveredRoles)
}

// CanReserve reports whether the role may commit or release reservations.
func CanReserve(role string) bool {
	return HasRole(role, ReserveRoles)
}
