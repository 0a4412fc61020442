package algorithm

import (
	"math"
	"sort"

	apperrors "github.com/z0w13/dmserv/internal/errors"
)

// MaxPosition is the largest channel position the platform accepts
const MaxPosition = math.MaxUint16

// Positions maps entity names to their zero-based target index
type Positions map[string]int

// AssignPositions indexes names in the given order.
//
// Repeated names keep the index of their first occurrence, so the result is
// always a contiguous permutation of 0..N-1 over the distinct names. It fails
// with a position overflow error rather than truncating when N-1 exceeds
// MaxPosition.
func AssignPositions(names []string) (Positions, error) {
	positions := make(Positions, len(names))
	next := 0
	for _, name := range names {
		if _, seen := positions[name]; seen {
			continue
		}
		if next > MaxPosition {
			return nil, apperrors.PositionOverflow(countDistinct(names), MaxPosition)
		}
		positions[name] = next
		next++
	}
	return positions, nil
}

// Repositions returns the names whose current index differs from the assigned
// one, ordered by target index. Names without a current index are skipped.
func Repositions(current map[string]int, positions Positions) []string {
	var moved []string
	for name, target := range positions {
		pos, ok := current[name]
		if !ok || pos == target {
			continue
		}
		moved = append(moved, name)
	}
	sort.Slice(moved, func(i, j int) bool {
		return positions[moved[i]] < positions[moved[j]]
	})
	return moved
}

func countDistinct(names []string) int {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		seen[name] = struct{}{}
	}
	return len(seen)
}
