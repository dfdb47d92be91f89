package media

import (
	"go.uber.org/zap"

	"github.com/fruitsalade/mediavault/internal/logging"
	"github.com/fruitsalade/mediavault/internal/metrics"
)

// Principal is an authenticated caller.
type Principal struct {
	ID    string
	Roles []string
}

// HasAnyRole reports whether p holds at least one of roles.
func (p *Principal) HasAnyRole(roles []string) bool {
	for _, want := range roles {
		for _, have := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Intent is the kind of access being checked.
type Intent int

const (
	IntentRead Intent = iota
	IntentWrite
)

func (i Intent) String() string {
	if i == IntentWrite {
		return "write"
	}
	return "read"
}

// Policy maps roots to the roles allowed to write into them.
type Policy struct {
	enforce bool
	perms   map[string][]string
}

// NewPolicy creates a policy. With enforce false every principal may write.
func NewPolicy(enforce bool, perms map[string][]string) *Policy {
	cp := make(map[string][]string, len(perms))
	for k, v := range perms {
		cp[k] = append([]string(nil), v...)
	}
	return &Policy{enforce: enforce, perms: cp}
}

// RequiredRoles returns the roles that grant write access to root. The "*"
// entry applies to roots without their own entry. Empty means anyone.
func (p *Policy) RequiredRoles(root string) []string {
	if roles, ok := p.perms[root]; ok {
		return roles
	}
	return p.perms["*"]
}

// Authorize checks whether principal may perform intent on dir. Reads only
// require a principal.
func (p *Policy) Authorize(principal *Principal, dir string, intent Intent) error {
	root := RootOf(dir)
	if principal == nil {
		metrics.RecordPermissionCheck(intent.String(), false)
		return &UnauthorizedError{Directory: dir, Root: root}
	}
	if intent != IntentWrite || !p.enforce {
		metrics.RecordPermissionCheck(intent.String(), true)
		return nil
	}

	roles := p.RequiredRoles(root)
	if len(roles) == 0 || principal.HasAnyRole(roles) {
		metrics.RecordPermissionCheck(intent.String(), true)
		return nil
	}

	metrics.RecordPermissionCheck(intent.String(), false)
	logging.Warn("media write denied by role policy",
		zap.String("user_id", principal.ID),
		zap.String("dir", dir),
		zap.String("root", root),
		zap.String("intent", intent.String()),
		zap.Strings("required_roles", roles))
	return &UnauthorizedError{Directory: dir, Root: root, RequiredRoles: append([]string(nil), roles...)}
}
