// Package cdcproject is the stateless transform between the outbox table
// and the broker: it decodes outbox rows captured via Postgres logical
// replication and projects them into broker messages whose headers carry
// the row's trace and business context byte-for-byte.
package cdcproject

import (
	"fmt"

	"github.com/jackc/pglogrepl"
)

// CapturedRow is a single decoded outbox_events row, column name to decoded
// text value. Tuple data is mapped back to column names via the relation
// message rather than positional indexes, so a column reorder in a future
// migration doesn't silently shift values.
type CapturedRow map[string]string

// Decoder tracks the relation (table schema) messages a logical replication
// stream sends before any row data, so subsequent Insert messages can be
// decoded by column name instead of position.
type Decoder struct {
	relations map[uint32]*pglogrepl.RelationMessageV2
}

// NewDecoder returns a Decoder with no relations registered yet.
func NewDecoder() *Decoder {
	return &Decoder{relations: make(map[uint32]*pglogrepl.RelationMessageV2)}
}

// RegisterRelation records a Relation message's column layout for its
// RelationID, so later Insert messages referencing it can be decoded.
func (d *Decoder) RegisterRelation(rel *pglogrepl.RelationMessageV2) {
	d.relations[rel.RelationID] = rel
}

// DecodeInsert turns an InsertMessageV2 into a CapturedRow keyed by column
// name, using the previously registered Relation for msg.RelationID. It
// returns an error if the relation hasn't been seen yet (the replication
// stream is expected to emit Relation before any Insert referencing it, as
// per the pgoutput protocol) or if a column carries a TOASTed/unchanged
// placeholder rather than real data.
func (d *Decoder) DecodeInsert(msg *pglogrepl.InsertMessageV2) (CapturedRow, error) {
	rel, ok := d.relations[msg.RelationID]
	if !ok {
		return nil, fmt.Errorf("cdcproject: no relation registered for id %d", msg.RelationID)
	}
	if len(msg.Tuple.Columns) != len(rel.Columns) {
		return nil, fmt.Errorf("cdcproject: tuple has %d columns, relation %s.%s has %d",
			len(msg.Tuple.Columns), rel.Namespace, rel.RelationName, len(rel.Columns))
	}

	row := make(CapturedRow, len(rel.Columns))
	for i, col := range rel.Columns {
		tupleCol := msg.Tuple.Columns[i]
		switch tupleCol.DataType {
		case 'n': // NULL
			row[col.Name] = ""
		case 'u': // unchanged TOAST datum, not sent
			return nil, fmt.Errorf("cdcproject: column %q is an unchanged TOAST value, full replica identity required", col.Name)
		case 't': // text value
			row[col.Name] = string(tupleCol.Data)
		default:
			return nil, fmt.Errorf("cdcproject: column %q has unsupported data type %q", col.Name, string(tupleCol.DataType))
		}
	}
	return row, nil
}
