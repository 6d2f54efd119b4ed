package predicate

import (
	"fmt"

	terrors "github.com/tesseradb/tessera/internal/errors"
	"github.com/tesseradb/tessera/pkg/types"
)

// Factory builds canonical partition column restrictions for one table.
// Binding the column once keeps every leaf it produces consistent with
// the column's declared type.
type Factory struct {
	column types.PartitionColumn
}

// NewFactory creates a factory bound to the given partition column.
func NewFactory(column types.PartitionColumn) *Factory {
	return &Factory{column: column}
}

// Column returns the partition column the factory is bound to.
func (f *Factory) Column() types.PartitionColumn {
	return f.column
}

// BuildEquality returns the restriction selecting rows whose partition
// column equals value, or the null test when value is nil. A nullable
// literal selecting between the two tests mirrors how restrictions
// arrive at the boundary, but the produced leaves stay distinct because
// null rows prune differently than any literal.
//
// A literal of the wrong type is rejected here with TYPE_MISMATCH
// rather than carried into the engine.
func (f *Factory) BuildEquality(value *types.Value) (Node, error) {
	if value == nil {
		return &IsNull{Column: f.column}, nil
	}
	if value.TypeID() != f.column.TypeID {
		return nil, terrors.NewTypeMismatch(
			fmt.Sprintf("literal type %s does not match partition column %q of type %s",
				value.TypeID(), f.column.Name, f.column.TypeID), nil)
	}
	return &Equals{Column: f.column, Value: *value}, nil
}

// DescribeEquality renders the canonical equality template with the
// literal left unbound. The text is stable across calls and exists so
// callers and tests can verify which comparison the factory wires to
// which column; it is not on the pruning path.
func (f *Factory) DescribeEquality() string {
	return fmt.Sprintf("(%s = $1::%s)", f.column.Name, f.column.TypeID)
}
