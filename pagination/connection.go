package pagination

import (
	"github.com/quivergql/quiver/language"
	"github.com/quivergql/quiver/store"
)

// Direction selects which end of a connection to extend.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// cursorArg returns the variable overridden with the current page cursor.
func (d Direction) cursorArg() string {
	if d == Backward {
		return language.ArgBefore
	}
	return language.ArgAfter
}

// countArg returns the variable carrying the requested page size.
func (d Direction) countArg() string {
	if d == Backward {
		return language.ArgLast
	}
	return language.ArgFirst
}

// pageState is the connection's page-info as read from a snapshot.
type pageState struct {
	edgesPresent bool
	startCursor  any
	endCursor    any
	hasNext      bool
	hasPrevious  bool
}

// readPageState extracts the connection's pagination state from a snapshot
// data tree. Every missing link in the chain reads as "no more pages".
func readPageState(data store.DataTree, connectionName string) pageState {
	var st pageState
	conn, ok := data[connectionName].(map[string]any)
	if !ok {
		return st
	}
	edges, ok := conn[language.ConnectionEdges].([]any)
	st.edgesPresent = ok && edges != nil
	pageInfo, ok := conn[language.ConnectionPageInfo].(map[string]any)
	if !ok {
		return st
	}
	st.startCursor = pageInfo[language.ConnectionStartCursor]
	st.endCursor = pageInfo[language.ConnectionEndCursor]
	st.hasNext, _ = pageInfo[language.ConnectionHasNextPage].(bool)
	st.hasPrevious, _ = pageInfo[language.ConnectionHasPreviousPage].(bool)
	return st
}

// hasMore applies the conservative availability chain: edges present, the
// relevant cursor present, and the relevant flag true. Anything missing or
// falsy reads as exhausted.
func (st pageState) hasMore(d Direction) bool {
	if !st.edgesPresent {
		return false
	}
	if d == Backward {
		return st.startCursor != nil && st.hasPrevious
	}
	return st.endCursor != nil && st.hasNext
}

// cursor returns the cursor to continue from in the given direction.
func (st pageState) cursor(d Direction) any {
	if d == Backward {
		return st.startCursor
	}
	return st.endCursor
}
