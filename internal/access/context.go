package access

import "sort"

// Names of the placeholders every compiler accepts unless configured
// otherwise.
const (
	CurrentPrincipal = "CURRENT_PRINCIPAL"
	CurrentRoles     = "CURRENT_ROLES"
)

// SecurityContext supplies the values of rule placeholders for the caller
// on whose behalf a query is filtered. Implementations must be safe for the
// duration of one FilterQuery or IsAccessible call.
type SecurityContext interface {
	// AliasNames lists the placeholder names the context can resolve.
	AliasNames() []string
	// ValueOf returns a scalar or a slice for a placeholder.
	ValueOf(name string) (any, bool)
}

// StaticContext is a SecurityContext over fixed values.
type StaticContext struct {
	Principal string
	Roles     []string
	Values    map[string]any
}

func (c StaticContext) AliasNames() []string {
	names := []string{CurrentPrincipal, CurrentRoles}
	for n := range c.Values {
		if n != CurrentPrincipal && n != CurrentRoles {
			names = append(names, n)
		}
	}
	sort.Strings(names[2:])
	return names
}

func (c StaticContext) ValueOf(name string) (any, bool) {
	if v, ok := c.Values[name]; ok {
		return v, true
	}
	switch name {
	case CurrentPrincipal:
		if c.Principal == "" {
			return nil, true
		}
		return c.Principal, true
	case CurrentRoles:
		roles := c.Roles
		if roles == nil {
			roles = []string{}
		}
		return roles, true
	}
	return nil, false
}
