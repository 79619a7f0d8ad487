package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/graphres/internal/ir"
)

// marshalInputs converts the resolution inputs to canonical JSON TEXT so a
// stored entry can be audited against its key.
func marshalInputs(inputs ir.Object) (string, error) {
	if inputs == nil {
		inputs = ir.Object{}
	}
	data, err := ir.MarshalCanonical(inputs)
	if err != nil {
		return "", fmt.Errorf("marshal inputs: %w", err)
	}
	return string(data), nil
}

// unmarshalInputs parses canonical JSON TEXT back into an ir.Object.
// ir.Object.UnmarshalJSON keeps integers exact via json.Number.
func unmarshalInputs(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal inputs: %w", err)
	}
	return obj, nil
}

// Timestamps are stored as Unix milliseconds.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
