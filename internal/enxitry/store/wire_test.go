package store_test

import (
	"errors"
	"slices"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/enxitry/enxitry/internal/enxitry/store"
)

func TestSnapshot_StructSurvivesProtoEncoding(t *testing.T) {
	in := store.Snapshot{
		Columns: []string{"external_id", "name"},
		Rows:    [][]string{{"100000001", "Sato, Ken"}, {"100000002", ""}},
	}
	st, err := in.ToStruct()
	if err != nil {
		t.Fatalf("ToStruct: %v", err)
	}
	b, err := proto.Marshal(st)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back structpb.Struct
	if err := proto.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	out, err := store.SnapshotFromStruct(&back)
	if err != nil {
		t.Fatalf("SnapshotFromStruct: %v", err)
	}
	if !slices.Equal(out.Columns, in.Columns) || len(out.Rows) != 2 || out.Rows[1][0] != "100000002" {
		t.Errorf("got %+v", out)
	}
}

func TestSnapshotFromStruct_RejectsNumbers(t *testing.T) {
	st, _ := structpb.NewStruct(map[string]any{"columns": []any{"a"}, "rows": []any{[]any{1.0}}})
	if _, err := store.SnapshotFromStruct(st); !errors.Is(err, store.ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}
