package model

import (
	"fmt"
	"strings"
)

// Permissions is a bit set of capabilities granted to an operator.
type Permissions uint32

const (
	PermissionBans Permissions = 1 << iota
	PermissionServers
	PermissionMaps
	PermissionAdmins

	PermissionNone Permissions = 0
	PermissionAll              = PermissionBans | PermissionServers | PermissionMaps | PermissionAdmins
)

var permissionNames = []struct {
	perm Permissions
	name string
}{
	{PermissionBans, "bans"},
	{PermissionServers, "servers"},
	{PermissionMaps, "maps"},
	{PermissionAdmins, "admins"},
}

// Contains reports whether every bit of required is also set in p.
func (p Permissions) Contains(required Permissions) bool {
	return p&required == required
}

// Names lists the known capabilities set in p, in declaration order.
func (p Permissions) Names() []string {
	names := make([]string, 0, len(permissionNames))
	for _, n := range permissionNames {
		if p&n.perm != 0 {
			names = append(names, n.name)
		}
	}
	return names
}

func (p Permissions) String() string {
	if p == PermissionNone {
		return "none"
	}
	return strings.Join(p.Names(), "|")
}

// Role is a named bundle of permissions that can be assigned to an admin.
type Role string

const (
	RoleBanManager    Role = "bans"
	RoleServerManager Role = "servers"
	RoleMapper        Role = "maps"
	RoleAdminManager  Role = "admins"
	RoleModerator     Role = "moderator"
	RoleSuperAdmin    Role = "superadmin"
)

var rolePermissions = map[Role]Permissions{
	RoleBanManager:    PermissionBans,
	RoleServerManager: PermissionServers,
	RoleMapper:        PermissionMaps,
	RoleAdminManager:  PermissionAdmins,
	RoleModerator:     PermissionBans | PermissionServers,
	RoleSuperAdmin:    PermissionAll,
}

// Permissions expands the role into its permission mask. Unknown roles
// expand to PermissionNone.
func (r Role) Permissions() Permissions {
	return rolePermissions[r]
}

// Valid returns true if the role is one of the known bundles.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// ParseRole converts a role name to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// CombineRoles ORs the masks of all given roles.
func CombineRoles(roles ...Role) Permissions {
	var p Permissions
	for _, r := range roles {
		p |= r.Permissions()
	}
	return p
}

// ParseRoles parses every name and returns the combined mask.
func ParseRoles(names []string) (Permissions, error) {
	roles := make([]Role, 0, len(names))
	for _, name := range names {
		r, err := ParseRole(name)
		if err != nil {
			return PermissionNone, err
		}
		roles = append(roles, r)
	}
	return CombineRoles(roles...), nil
}
