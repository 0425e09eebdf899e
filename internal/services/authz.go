package services

import "strings"

// Role names carried in identity claims. Capabilities are resolved from roles
// once, at the edge; services only ever check capabilities.
const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// rolesToCapabilities maps each role onto the order-management capabilities it
// grants. Buyers hold none; ownership checks cover their own orders.
var rolesToCapabilities = map[string][]Capability{
	RoleStaff: {CapabilityTransition},
	RoleAdmin: {CapabilityTransition, CapabilityArchive, CapabilityMarkPaid},
}

// ResolveCapabilities folds role claims into a capability set.
func ResolveCapabilities(roles []string) CapabilitySet {
	set := CapabilitySet{}
	for _, role := range roles {
		for _, capability := range rolesToCapabilities[strings.ToLower(strings.TrimSpace(role))] {
			set[capability] = true
		}
	}
	return set
}

// NewActor builds the acting principal from identity claims.
func NewActor(uid string, roles []string) Actor {
	return Actor{
		ID:           strings.TrimSpace(uid),
		Capabilities: ResolveCapabilities(roles),
	}
}
