package store

import (
	"errors"
	"fmt"

	"github.com/quivergql/quiver/language"
)

// RequestID identifies the logical operation whose traversal produced a
// snapshot. Notify reports change sets in terms of these.
type RequestID string

// Selector names a subgraph to read: the record to start from, the
// selection tree to follow, the variables to resolve arguments with, and
// the operation descriptor that owns the read. Two selectors are equal iff
// all four components are equal under canonical variable serialization.
type Selector struct {
	Root       DataID
	Selections language.SelectionSet
	Variables  language.Variables
	Owner      *language.OperationDescriptor
}

var errSelectorIncomplete = errors.New("selector requires a root id, a selection set, and an owner")

// NewSelector validates and builds a selector. Missing components are a
// configuration error.
func NewSelector(root DataID, selections language.SelectionSet, vars language.Variables, owner *language.OperationDescriptor) (Selector, error) {
	if root == "" || len(selections) == 0 || owner == nil {
		return Selector{}, errSelectorIncomplete
	}
	return Selector{Root: root, Selections: selections, Variables: vars, Owner: owner}, nil
}

// RootSelector names the full read of an operation, rooted at the client
// query root.
func RootSelector(op *language.OperationDescriptor) Selector {
	return Selector{
		Root:       RootID,
		Selections: op.Request.SelectionSet(),
		Variables:  op.Variables,
		Owner:      op,
	}
}

// RequestID returns the owning operation's identity.
func (s Selector) RequestID() RequestID {
	return RequestID(s.Owner.ID())
}

// Key returns the selector's identity string. Selection sets come from a
// parsed document, so the backing array address is a stable component.
func (s Selector) Key() string {
	return fmt.Sprintf("%s|%s|%p|%s", s.Root, s.Owner.ID(), s.Selections, s.Variables.Canonical())
}

// Equal reports component-wise selector equality.
func (s Selector) Equal(other Selector) bool {
	if s.Root != other.Root || s.Owner != other.Owner {
		return false
	}
	if !s.Variables.Equal(other.Variables) {
		return false
	}
	if len(s.Selections) != len(other.Selections) {
		return false
	}
	for i := range s.Selections {
		if s.Selections[i] != other.Selections[i] {
			return false
		}
	}
	return true
}
