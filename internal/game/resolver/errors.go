package resolver

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/demonlord/internal/game/stats"
)

// ErrUnknownSubjectType is returned when a subject's type has no schema.
var ErrUnknownSubjectType = errors.New("unknown subject type")

// UnresolvedKeyError reports a change key that is neither a schema path nor a catalog key,
// or a catalog key whose path the subject's schema does not declare.
type UnresolvedKeyError struct {
	Key  string
	Path string
}

func (e *UnresolvedKeyError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("change key %q resolves to undeclared path %q", e.Key, e.Path)
	}
	return fmt.Sprintf("change key %q has no catalog entry", e.Key)
}

// ChangeCastError reports a change value that cannot be combined with its target field.
type ChangeCastError struct {
	Key   string
	Path  string
	Value string
	Kind  stats.Kind
	Err   error
}

func (e *ChangeCastError) Error() string {
	return fmt.Sprintf("change %q on %s (%s) with value %q: %v", e.Key, e.Path, e.Kind, e.Value, e.Err)
}

func (e *ChangeCastError) Unwrap() error { return e.Err }

// MissingCombinerError reports a custom change with no registered combiner.
type MissingCombinerError struct {
	Name string
}

func (e *MissingCombinerError) Error() string {
	return fmt.Sprintf("no custom combiner registered for %q", e.Name)
}
