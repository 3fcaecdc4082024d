package language

import (
	"errors"
	"fmt"
)

// Names fixed by the cursor-connections convention. The cache interprets
// records shaped this way specially when paginating.
const (
	ConnectionEdges           = "edges"
	ConnectionPageInfo        = "pageInfo"
	ConnectionCursor          = "cursor"
	ConnectionNode            = "node"
	ConnectionStartCursor     = "startCursor"
	ConnectionEndCursor       = "endCursor"
	ConnectionHasNextPage     = "hasNextPage"
	ConnectionHasPreviousPage = "hasPreviousPage"
)

// Canonical pagination argument names overridden when deriving the next
// page's variables.
const (
	ArgAfter  = "after"
	ArgFirst  = "first"
	ArgBefore = "before"
	ArgLast   = "last"
)

// ErrMissingConnectionKey is returned when a @connection directive omits
// its required key argument. This is a configuration error: callers fail
// fast at the point of use.
var ErrMissingConnectionKey = errors.New("@connection directive requires a non-empty key argument")

// ConnectionMeta describes a paginated field annotated with @connection.
type ConnectionMeta struct {
	// Key is the stable identity of the connection, shared by every page.
	Key string

	// Filters lists the argument names that remain part of the storage key
	// (pagination arguments never do). Nil means all non-pagination
	// arguments.
	Filters []string
}

// ConnectionInfo inspects a field for a @connection directive. It returns
// (nil, nil) for fields without one.
func ConnectionInfo(field *Field) (*ConnectionMeta, error) {
	directive := field.Directives.ForName("connection")
	if directive == nil {
		return nil, nil
	}
	key, _ := directiveArgument(directive, "key", nil).(string)
	if key == "" {
		return nil, fmt.Errorf("field %q: %w", field.Name, ErrMissingConnectionKey)
	}
	meta := &ConnectionMeta{Key: key}
	if raw, ok := directiveArgument(directive, "filters", nil).([]any); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				meta.Filters = append(meta.Filters, s)
			}
		}
	}
	return meta, nil
}

// StorageKey computes the stable storage key for a connection field:
// __connection:<key>, plus the filter arguments (pagination cursors and
// page sizes excluded) so that differently-filtered connections stay
// distinct while successive pages of one connection collide.
func (m *ConnectionMeta) StorageKey(field *Field, vars Variables) string {
	exclude := map[string]bool{ArgAfter: true, ArgFirst: true, ArgBefore: true, ArgLast: true}
	if m.Filters != nil {
		keep := make(map[string]bool, len(m.Filters))
		for _, f := range m.Filters {
			keep[f] = true
		}
		for _, arg := range field.Arguments {
			if !keep[arg.Name] {
				exclude[arg.Name] = true
			}
		}
	}
	return storageKeyWithArgs("__connection:"+m.Key, field.Arguments, vars, exclude)
}
