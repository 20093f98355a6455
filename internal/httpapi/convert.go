package httpapi

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/enxitry/enxitry/internal/enxitry/types"
)

// ── Occupancy ────────────────────────────────────────────────────────────────

func occupancyToProto(v types.OccupancyView) (*structpb.Struct, error) {
	occupants := make([]any, len(v.Occupants))
	for i, o := range v.Occupants {
		occupants[i] = map[string]any{
			"external_id": o.ExternalID,
			"name":        o.Name,
		}
	}
	fields := map[string]any{"occupants": occupants}
	if !v.AsOf.IsZero() {
		fields["as_of"] = v.AsOf.Format(time.RFC3339)
	}
	return structpb.NewStruct(fields)
}

// OccupancyFromProto decodes the protobuf body of GET /v1/occupancy.
func OccupancyFromProto(st *structpb.Struct) (types.OccupancyView, error) {
	var v types.OccupancyView
	fields := st.GetFields()
	if s := fields["as_of"].GetStringValue(); s != "" {
		at, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return v, fmt.Errorf("as_of: %w", err)
		}
		v.AsOf = at
	}
	list := fields["occupants"].GetListValue()
	if list == nil {
		return v, errors.New("occupants: missing list")
	}
	for i, item := range list.GetValues() {
		o := item.GetStructValue()
		if o == nil {
			return v, fmt.Errorf("occupants[%d]: not an object", i)
		}
		v.Occupants = append(v.Occupants, types.Occupant{
			ExternalID: o.GetFields()["external_id"].GetStringValue(),
			Name:       o.GetFields()["name"].GetStringValue(),
		})
	}
	return v, nil
}
