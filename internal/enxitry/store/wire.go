package store

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct encodes s as {"columns": [...], "rows": [[...], ...]} for
// protobuf transport.
func (s Snapshot) ToStruct() (*structpb.Struct, error) {
	cols := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = c
	}
	rows := make([]any, len(s.Rows))
	for i, r := range s.Rows {
		cells := make([]any, len(r))
		for j, c := range r {
			cells[j] = c
		}
		rows[i] = cells
	}
	return structpb.NewStruct(map[string]any{"columns": cols, "rows": rows})
}

// SnapshotFromStruct is the inverse of Snapshot.ToStruct.
func SnapshotFromStruct(st *structpb.Struct) (Snapshot, error) {
	var snap Snapshot
	for _, v := range st.GetFields()["columns"].GetListValue().GetValues() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: non-string column", ErrMalformed)
		}
		snap.Columns = append(snap.Columns, s.StringValue)
	}
	for i, rv := range st.GetFields()["rows"].GetListValue().GetValues() {
		list := rv.GetListValue()
		if list == nil {
			return Snapshot{}, fmt.Errorf("%w: row %d is not a list", ErrMalformed, i)
		}
		cells := make([]string, 0, len(list.GetValues()))
		for _, cv := range list.GetValues() {
			s, ok := cv.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return Snapshot{}, fmt.Errorf("%w: row %d has a non-string cell", ErrMalformed, i)
			}
			cells = append(cells, s.StringValue)
		}
		snap.Rows = append(snap.Rows, cells)
	}
	return snap, nil
}
