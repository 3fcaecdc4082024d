package language

import (
	"sort"
	"strconv"
	"strings"
)

// AliasOrName returns the response name of a field.
func AliasOrName(field *Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}

// StorageKey computes the key under which a field's value is stored on its
// record: the field name when the field takes no arguments, otherwise the
// name followed by the arguments in sorted order with variables substituted
// and values canonically serialized, e.g. friends(after:"c1",first:10).
//
// Fields carrying a @connection directive use a stable key derived from the
// directive instead, so that successive pages land on the same record.
func StorageKey(field *Field, vars Variables) string {
	if info, err := ConnectionInfo(field); err == nil && info != nil {
		return info.StorageKey(field, vars)
	}
	return storageKeyWithArgs(field.Name, field.Arguments, vars, nil)
}

func storageKeyWithArgs(name string, args ArgumentList, vars Variables, exclude map[string]bool) string {
	kept := make([]*Argument, 0, len(args))
	for _, arg := range args {
		if exclude[arg.Name] {
			continue
		}
		kept = append(kept, arg)
	}
	if len(kept) == 0 {
		return name
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Name < kept[j].Name })
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, arg := range kept {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(arg.Name)
		sb.WriteByte(':')
		writeCanonical(&sb, ValueToGo(arg.Value, vars))
	}
	sb.WriteByte(')')
	return sb.String()
}

// ArgumentValues resolves a field's arguments against the given variables.
func ArgumentValues(field *Field, vars Variables) map[string]any {
	out := make(map[string]any, len(field.Arguments))
	for _, arg := range field.Arguments {
		out[arg.Name] = ValueToGo(arg.Value, vars)
	}
	return out
}

// ShouldInclude evaluates @skip and @include against the given variables.
func ShouldInclude(directives DirectiveList, vars Variables) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, ok := directiveArgument(skip, "if", vars).(bool); ok && v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := directiveArgument(include, "if", vars).(bool); ok && !v {
			return false
		}
	}
	return true
}

func directiveArgument(directive *Directive, name string, vars Variables) any {
	for _, arg := range directive.Arguments {
		if arg.Name == name {
			return ValueToGo(arg.Value, vars)
		}
	}
	return nil
}

// ValueToGo converts an AST value to a runtime value, substituting
// variables from vars.
func ValueToGo(value *Value, vars Variables) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case Variable:
		name := value.Raw
		if v, ok := vars[name]; ok {
			return v
		}
		if v, ok := vars[strings.TrimPrefix(name, "$")]; ok {
			return v
		}
		return nil
	case IntValue:
		iv, _ := strconv.Atoi(value.Raw)
		return iv
	case FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case StringValue, BlockValue:
		return value.Raw
	case BooleanValue:
		return value.Raw == "true"
	case NullValue:
		return nil
	case EnumValue:
		return value.Raw
	case ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = ValueToGo(c.Value, vars)
		}
		return out
	case ObjectValue:
		m := make(map[string]any)
		for _, f := range value.Children {
			m[f.Name] = ValueToGo(f.Value, vars)
		}
		return m
	default:
		return nil
	}
}

// Collect flattens a selection set into the ordered list of fields to read,
// resolving fragment spreads against doc, evaluating @skip/@include against
// vars, and filtering fragments by type condition against typeName. An
// empty typeName matches every condition (the concrete type is unknown, so
// traversal is conservative and descends). Fields sharing a response name
// are merged in query order, their child selections concatenated.
func Collect(doc *QueryDocument, selections SelectionSet, vars Variables, typeName string) []*Field {
	c := collector{doc: doc, vars: vars, typeName: typeName, index: map[string]int{}, visited: map[string]bool{}}
	c.walk(selections)
	return c.fields
}

type collector struct {
	doc      *QueryDocument
	vars     Variables
	typeName string

	fields  []*Field
	index   map[string]int
	visited map[string]bool
}

func (c *collector) walk(selections SelectionSet) {
	for _, selection := range selections {
		switch sel := selection.(type) {
		case *Field:
			if !ShouldInclude(sel.Directives, c.vars) {
				continue
			}
			c.add(sel)
		case *InlineFragment:
			if !ShouldInclude(sel.Directives, c.vars) {
				continue
			}
			if !c.matches(sel.TypeCondition) {
				continue
			}
			c.walk(sel.SelectionSet)
		case *FragmentSpread:
			if !ShouldInclude(sel.Directives, c.vars) {
				continue
			}
			if c.visited[sel.Name] {
				continue
			}
			c.visited[sel.Name] = true
			def := FragmentForName(c.doc, sel.Name)
			if def == nil {
				continue
			}
			if !c.matches(def.TypeCondition) {
				continue
			}
			if !ShouldInclude(def.Directives, c.vars) {
				continue
			}
			c.walk(def.SelectionSet)
		}
	}
}

func (c *collector) add(field *Field) {
	name := AliasOrName(field)
	if idx, ok := c.index[name]; ok {
		prev := c.fields[idx]
		if len(field.SelectionSet) > 0 {
			merged := *prev
			merged.SelectionSet = append(append(SelectionSet{}, prev.SelectionSet...), field.SelectionSet...)
			c.fields[idx] = &merged
		}
		return
	}
	c.index[name] = len(c.fields)
	c.fields = append(c.fields, field)
}

// matches applies a fragment type condition. Without schema knowledge the
// cache cannot resolve interface/union membership, so only exact type-name
// matches (or an unknown concrete type) descend.
func (c *collector) matches(condition string) bool {
	if condition == "" || c.typeName == "" {
		return true
	}
	return condition == c.typeName
}

// FragmentForName finds a fragment definition in doc.
func FragmentForName(doc *QueryDocument, name string) *FragmentDefinition {
	if doc == nil {
		return nil
	}
	return doc.Fragments.ForName(name)
}
