package language

import "fmt"

// Request is a parsed, validated operation document together with the name
// of the operation to execute. It is the "owning request" component of a
// selector: snapshots and subscriptions trace back to the Request whose
// traversal produced them.
type Request struct {
	// Name is the operation name. Empty when the document holds a single
	// anonymous operation.
	Name string

	// Kind is the operation kind (query, mutation, subscription).
	Kind Operation

	// Document holds the full executable document, used to resolve
	// fragment spreads during traversal.
	Document *QueryDocument

	// Source is the raw document text, forwarded verbatim to the fetch
	// boundary.
	Source string

	operation *OperationDefinition
}

// NewRequest parses source and binds the named operation. An empty
// operationName selects the document's sole operation.
func NewRequest(source, operationName string) (*Request, error) {
	doc, err := ParseQuery(source)
	if err != nil {
		return nil, err
	}
	opDef := doc.Operations.ForName(operationName)
	if opDef == nil && operationName == "" && len(doc.Operations) == 1 {
		opDef = doc.Operations[0]
	}
	if opDef == nil {
		return nil, fmt.Errorf("operation %q not found in document", operationName)
	}
	return &Request{
		Name:      opDef.Name,
		Kind:      opDef.Operation,
		Document:  doc,
		Source:    source,
		operation: opDef,
	}, nil
}

// SelectionSet returns the root selection set of the bound operation.
func (r *Request) SelectionSet() SelectionSet {
	return r.operation.SelectionSet
}

// Describe pairs the request with concrete variable values, producing an
// operation descriptor whose ID is the request's cache identity.
func (r *Request) Describe(vars Variables) *OperationDescriptor {
	return &OperationDescriptor{Request: r, Variables: vars}
}

// OperationDescriptor is a Request bound to concrete variables. Two
// descriptors with equal IDs denote the same logical operation.
type OperationDescriptor struct {
	Request   *Request
	Variables Variables

	id string
}

// ID returns the descriptor's identity: operation name plus the canonical
// variable serialization. Computed once and cached.
func (d *OperationDescriptor) ID() string {
	if d.id == "" {
		d.id = d.Request.Name + ":" + d.Variables.Canonical()
	}
	return d.id
}
