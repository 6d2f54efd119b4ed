// Package predicate defines the restriction tree the pruning engine
// evaluates: leaf tests on a table's partition column plus AND/OR
// composition. Trees are immutable once built, so one tree can be
// evaluated by any number of concurrent pruning calls.
package predicate

import (
	"fmt"
	"strings"

	"github.com/tesseradb/tessera/pkg/types"
)

// Node represents one vertex of a restriction tree. The engine handles
// each concrete variant explicitly; anything it does not recognize is
// treated like Opaque, which can only widen the result, never narrow it.
type Node interface {
	predicateNode()
	String() string
}

// Equals matches rows whose partition column equals a literal.
type Equals struct {
	Column types.PartitionColumn
	Value  types.Value
}

func (e *Equals) predicateNode() {}

// String returns the SQL-ish rendering of the equality test.
func (e *Equals) String() string {
	return fmt.Sprintf("(%s = %s)", e.Column.Name, e.Value)
}

// IsNull matches rows whose partition column is null. Null rows follow
// different pruning rules than any literal, so this is a distinct leaf
// rather than an Equals with a sentinel value.
type IsNull struct {
	Column types.PartitionColumn
}

func (i *IsNull) predicateNode() {}

// String returns the SQL-ish rendering of the null test.
func (i *IsNull) String() string {
	return fmt.Sprintf("(%s IS NULL)", i.Column.Name)
}

// Opaque marks a clause that does not restrict the partition column or
// that could not be interpreted. It may be true for any row, so the
// engine answers it with the full shard set.
type Opaque struct {
	// Reason records why the clause was not interpretable, for logs only.
	Reason string
}

func (o *Opaque) predicateNode() {}

// String returns a diagnostic rendering of the opaque clause.
func (o *Opaque) String() string {
	if o.Reason != "" {
		return fmt.Sprintf("<opaque: %s>", o.Reason)
	}
	return "<opaque>"
}

// And is true iff all children are true. An empty And places no
// restriction at all and selects every shard.
type And struct {
	Children []Node
}

func (a *And) predicateNode() {}

// String returns the SQL-ish rendering of the conjunction.
func (a *And) String() string {
	if len(a.Children) == 0 {
		return "TRUE"
	}
	parts := make([]string, len(a.Children))
	for i, child := range a.Children {
		parts[i] = child.String()
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// Or is true iff any child is true. Callers express "no restriction" as
// an empty And, never an empty Or, so an Or always has children.
type Or struct {
	Children []Node
}

func (o *Or) predicateNode() {}

// String returns the SQL-ish rendering of the disjunction.
func (o *Or) String() string {
	if len(o.Children) == 0 {
		return "FALSE"
	}
	parts := make([]string, len(o.Children))
	for i, child := range o.Children {
		parts[i] = child.String()
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// NoRestriction returns the tree that matches every row. Pruning it
// yields the full shard set.
func NoRestriction() Node {
	return &And{}
}
