// Package coordinator implements the Write and Read Coordinators: the
// two actors that sit between a parsed SQL statement and the schema,
// metadata, and namespace actors that actually hold state.
package coordinator

import "github.com/aogier/nsdb/pkg/types"

// InputMapped is the success reply to MapInput: every targeted
// Namespace Data Actor accepted the record, at the given Location.
type InputMapped struct {
	Location types.Location
}

// RecordRejected is the failure reply to MapInput, ExecuteDeleteStatement,
// DropMetric, or DeleteNamespace: Reasons names every contributing
// failure, one per node when the rejection came from a partial write
// failure.
type RecordRejected struct {
	Reasons []string
}

// NamespaceDeleted is the success reply to DeleteNamespace: every
// child indexer under the namespace was stopped and its on-disk state
// erased, cluster metadata for the namespace was cleared, and its
// schemas were dropped.
type NamespaceDeleted struct {
	Db, Ns string
}

// SelectResult is the success reply to ExecuteStatement: Columns names
// each projected field in order, and Rows holds the merged, grouped,
// ordered, and limited result values. A plain "SELECT * " with no
// aggregation or grouping projects "timestamp", "value", and every
// dimension name present in the returned bits.
type SelectResult struct {
	Columns []string
	Rows    [][]types.Value
}
