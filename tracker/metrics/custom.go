package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/bench-history/tracker/types"
)

// ParseBenchJSON reads a JSON array of {name, value, unit, range, extra}
// objects, the format produced by custom benchmark scripts.
func ParseBenchJSON(r io.Reader) ([]types.Bench, error) {
	var benches []types.Bench
	dec := json.NewDecoder(r)
	if err := dec.Decode(&benches); err != nil {
		return nil, fmt.Errorf("failed to decode bench JSON: %w", err)
	}

	for i, b := range benches {
		switch {
		case b.Name == "":
			return nil, fmt.Errorf("bench %d: name is required", i)
		case b.Unit == "":
			return nil, fmt.Errorf("bench %q: unit is required", b.Name)
		case math.IsNaN(b.Value) || math.IsInf(b.Value, 0) || b.Value < 0:
			return nil, fmt.Errorf("bench %q: value %v must be finite and non-negative", b.Name, b.Value)
		}
	}
	if benches == nil {
		benches = []types.Bench{}
	}
	return benches, nil
}
