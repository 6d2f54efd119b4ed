package predicate

import (
	"fmt"

	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/pkg/types"
)

// Wire operators accepted in a Clause.
const (
	OpEquals = "eq"
	OpIsNull = "is_null"
	OpAnd    = "and"
	OpOr     = "or"
)

// maxClauseDepth bounds recursion when translating untrusted trees.
const maxClauseDepth = 64

// Clause is the wire form of a restriction tree as it arrives over HTTP
// or gRPC. Leaf clauses carry a column and, for equality, a literal in
// the column type's canonical text encoding; composite clauses carry
// children.
type Clause struct {
	// Op is one of eq, is_null, and, or. Anything else is treated as a
	// clause the engine cannot interpret.
	Op string `json:"op"`

	// Column names the restricted column for leaf clauses
	Column string `json:"column,omitempty"`

	// Value holds the equality literal in canonical text form. Absent
	// for is_null and composite clauses.
	Value *string `json:"value,omitempty"`

	// Children holds the operands of and/or clauses
	Children []Clause `json:"children,omitempty"`
}

// Translate converts a wire clause into the engine's tree, resolving
// leaves against the table's partition column. A nil clause means the
// caller supplied no restriction.
//
// Clauses on other columns and unknown operators translate to Opaque:
// skipping pruning for a branch is always safe, rejecting the request
// is not required. Structural defects (missing literal, empty or, bad
// literal text, excessive nesting) are caller errors and are rejected.
func Translate(clause *Clause, column types.PartitionColumn) (Node, error) {
	if clause == nil {
		return NoRestriction(), nil
	}
	return translate(*clause, column, 0)
}

func translate(clause Clause, column types.PartitionColumn, depth int) (Node, error) {
	if depth > maxClauseDepth {
		return nil, terrors.NewInvalidArgument(
			fmt.Sprintf("predicate nesting exceeds %d levels", maxClauseDepth))
	}

	switch clause.Op {
	case OpEquals:
		if clause.Column != column.Name {
			return &Opaque{Reason: fmt.Sprintf("column %q is not the partition column", clause.Column)}, nil
		}
		if clause.Value == nil {
			return nil, terrors.NewInvalidArgument(
				fmt.Sprintf("eq clause on %q has no value", clause.Column))
		}
		value, err := types.ParseValue(column.TypeID, *clause.Value)
		if err != nil {
			return nil, terrors.NewTypeMismatch(
				fmt.Sprintf("literal %q is not a valid %s", *clause.Value, column.TypeID), err)
		}
		return &Equals{Column: column, Value: value}, nil

	case OpIsNull:
		if clause.Column != column.Name {
			return &Opaque{Reason: fmt.Sprintf("column %q is not the partition column", clause.Column)}, nil
		}
		return &IsNull{Column: column}, nil

	case OpAnd, OpOr:
		if clause.Op == OpOr && len(clause.Children) == 0 {
			// An empty or would mean "always false". Callers express the
			// absence of restriction as an empty and, so this shape is a bug
			// on their side.
			return nil, terrors.NewInvalidArgument("or clause has no children")
		}
		children := make([]Node, 0, len(clause.Children))
		for _, child := range clause.Children {
			node, err := translate(child, column, depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, node)
		}
		if clause.Op == OpAnd {
			return &And{Children: children}, nil
		}
		return &Or{Children: children}, nil

	default:
		return &Opaque{Reason: fmt.Sprintf("unknown operator %q", clause.Op)}, nil
	}
}
