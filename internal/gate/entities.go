package gate

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Annotation is one span in the service response. Indices is a
// [start, end] pair of offsets into the response text; the optional
// attributes depend on the annotation set.
type Annotation struct {
	Indices []int  `json:"indices"`
	LocType string `json:"locType,omitempty"`
	Gender  string `json:"gender,omitempty"`
}

// Result is the parsed service response: the processed text and entity
// annotations grouped by annotation-set key.
type Result struct {
	Text     string                  `json:"text"`
	Entities map[string][]Annotation `json:"entities"`
}

// Entity kinds the anonymiser distinguishes.
const (
	KindLocation = "Location"
	KindPerson   = "Person"
	KindUserID   = "UserID"
	KindURL      = "URL"
)

// Entity is one recognised span normalised into the pipeline's terms.
// Attr carries the location type or person gender when present.
type Entity struct {
	Kind  string `json:"kind"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Attr  string `json:"attr,omitempty"`
}

func decodeResult(r io.Reader) (*Result, error) {
	var result Result
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("gate: decoding response: %w", err)
	}
	return &result, nil
}

// Flatten collapses the response's annotation sets into spans the
// anonymiser understands. Set keys are matched by substring: the service
// namespaces them (e.g. ":Location"), and Organization spans are folded
// into the URL kind, which shares its blanket placeholder.
func (r *Result) Flatten() []Entity {
	var entities []Entity

	keys := make([]string, 0, len(r.Entities))
	for key := range r.Entities {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, ann := range r.Entities[key] {
			if len(ann.Indices) < 2 {
				continue
			}
			entity := Entity{
				Start: ann.Indices[0],
				End:   ann.Indices[len(ann.Indices)-1],
			}
			switch {
			case strings.Contains(key, "Location"):
				entity.Kind = KindLocation
				entity.Attr = ann.LocType
			case strings.Contains(key, "Person"):
				entity.Kind = KindPerson
				entity.Attr = ann.Gender
			case strings.Contains(key, "UserID"):
				entity.Kind = KindUserID
			case strings.Contains(key, "URL"), strings.Contains(key, "Organization"):
				entity.Kind = KindURL
			default:
				continue
			}
			entities = append(entities, entity)
		}
	}

	return entities
}
