package types

import (
	"slices"
	"strings"
	"time"
)

// Occupant is the display projection of an entered person.
type Occupant struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

// OccupancyView is an immutable snapshot of who is in the room. Methods
// return modified copies so a published view is never mutated in place.
type OccupancyView struct {
	Occupants []Occupant `json:"occupants"`
	AsOf      time.Time  `json:"as_of"`
}

// ProjectOccupancy filters persons to the entered ones, ordered by
// external id.
func ProjectOccupancy(persons []Person, asOf time.Time) OccupancyView {
	out := make([]Occupant, 0, len(persons))
	for _, p := range persons {
		if p.Status != StatusEntered {
			continue
		}
		out = append(out, Occupant{ExternalID: p.ExternalID, Name: p.Name})
	}
	sortOccupants(out)
	return OccupancyView{Occupants: out, AsOf: asOf}
}

// With returns a view that includes o, replacing any occupant with the
// same external id.
func (v OccupancyView) With(o Occupant) OccupancyView {
	out := make([]Occupant, 0, len(v.Occupants)+1)
	for _, cur := range v.Occupants {
		if cur.ExternalID != o.ExternalID {
			out = append(out, cur)
		}
	}
	out = append(out, o)
	sortOccupants(out)
	return OccupancyView{Occupants: out, AsOf: v.AsOf}
}

// Without returns a view with externalID removed.
func (v OccupancyView) Without(externalID string) OccupancyView {
	out := make([]Occupant, 0, len(v.Occupants))
	for _, cur := range v.Occupants {
		if cur.ExternalID != externalID {
			out = append(out, cur)
		}
	}
	return OccupancyView{Occupants: out, AsOf: v.AsOf}
}

func (v OccupancyView) Contains(externalID string) bool {
	for _, cur := range v.Occupants {
		if cur.ExternalID == externalID {
			return true
		}
	}
	return false
}

func (v OccupancyView) Len() int { return len(v.Occupants) }

func sortOccupants(out []Occupant) {
	slices.SortFunc(out, func(a, b Occupant) int {
		return strings.Compare(a.ExternalID, b.ExternalID)
	})
}
