package session

import (
	"log"
	"math/rand"
	"time"
)

// RoleDraw is the outcome of a role assignment: exactly one hunter, everyone
// else an infiltrator.
type RoleDraw struct {
	HunterID       int64
	InfiltratorIDs []int64
}

// AssignRoles draws a hunter uniformly from ids. A nil src seeds from the
// wall clock; tests pass a fixed source to make the draw reproducible.
// Returns false when ids is empty.
func AssignRoles(ids []int64, src rand.Source, logger *log.Logger) (RoleDraw, bool) {
	if len(ids) == 0 {
		return RoleDraw{}, false
	}
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	rng := rand.New(src)
	draw := buildDraw(ids, rng.Intn(len(ids)))
	if err := validateDraw(ids, draw); err != nil {
		if logger != nil {
			logger.Printf("CRITICAL role draw invalid (%v); falling back to first joiner", err)
		}
		draw = buildDraw(ids, 0)
	}
	return draw, true
}

func buildDraw(ids []int64, hunterIdx int) RoleDraw {
	d := RoleDraw{HunterID: ids[hunterIdx]}
	for i, id := range ids {
		if i == hunterIdx {
			continue
		}
		d.InfiltratorIDs = append(d.InfiltratorIDs, id)
	}
	return d
}

func validateDraw(ids []int64, d RoleDraw) error {
	hunters := 0
	seen := map[int64]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if seen[d.HunterID] {
		hunters++
	}
	for _, id := range d.InfiltratorIDs {
		if id == d.HunterID {
			return errDrawOverlap
		}
		if !seen[id] {
			return errDrawUnknown
		}
	}
	if hunters != 1 {
		return errDrawNoHunter
	}
	if len(d.InfiltratorIDs) != len(ids)-1 {
		return errDrawCount
	}
	return nil
}

var (
	errDrawOverlap  = drawError("hunter also listed as infiltrator")
	errDrawUnknown  = drawError("infiltrator id not in roster")
	errDrawNoHunter = drawError("hunter id not in roster")
	errDrawCount    = drawError("infiltrator count mismatch")
)

type drawError string

func (e drawError) Error() string { return string(e) }
