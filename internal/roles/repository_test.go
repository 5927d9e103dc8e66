package roles

import (
	"testing"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// The seeder writes max_scope as the scope's wire name; the repository
// reads it back through ParseScope. Both sides must agree for every
// grant that can be persisted.
func TestScopeColumnRoundTrip(t *testing.T) {
	for _, role := range DefaultRoles() {
		for key, spec := range role.BasePermissions {
			parsed, err := authz.ParseScope(spec.MaxScope.String())
			if err != nil {
				t.Fatalf("%s %s/%s: %v", role.ID, key.Resource, key.Action, err)
			}
			if parsed != spec.MaxScope {
				t.Fatalf("%s %s/%s: stored %q, read back %s", role.ID, key.Resource, key.Action, spec.MaxScope.String(), parsed)
			}
		}
	}
}

func TestParseScopeRejectsUnknownColumnValue(t *testing.T) {
	if _, err := authz.ParseScope("3"); err == nil {
		t.Fatalf("numeric scope values must not parse")
	}
	if _, err := authz.ParseScope("none"); err == nil {
		t.Fatalf("the zero scope must not be loadable as a grant")
	}
}
