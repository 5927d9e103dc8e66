package authz

import "errors"

// Error taxonomy shared by every engine component. Callers branch with
// errors.Is; the engine maps all of these to fail-closed denials and
// never leaks them to clients verbatim.
var (
	// ErrValidation indicates a structurally malformed input, e.g. a
	// TargetRef with team visibility and no team id.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a dangling reference: an organization,
	// department or team named by a target does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates an optimistic-lock failure on a permission
	// matrix write. The writer must refetch and retry with a fresh version.
	ErrConflict = errors.New("version conflict")
	// ErrUnavailable indicates the backing store or cache is unusable
	// beyond the staleness ceiling. Decisions fail closed.
	ErrUnavailable = errors.New("backing store unavailable")
)
