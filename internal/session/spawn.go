package session

import (
	"log"
	"math/rand"
)

type posKey struct {
	Area string
	Slot int
}

// SpawnBook owns every spawn claim in the session: participant claims,
// transient extras, and the degraded fallback counter. A slot is held by at
// most one id at a time.
type SpawnBook struct {
	claims       map[int64]Position
	byPos        map[posKey]int64
	extras       map[int64]bool
	fallbackSlot int
}

func NewSpawnBook() *SpawnBook {
	return &SpawnBook{
		claims: map[int64]Position{},
		byPos:  map[posKey]int64{},
		extras: map[int64]bool{},
	}
}

// ClaimSpawnFor picks a free slot for id uniformly among candidate areas
// allowed by the filter. Slots held by extras count as free: claiming one
// despawns the extra, whose ids are returned so the caller can broadcast the
// despawn. A missing or not-ready layout degrades to synthetic fallback
// positions instead of failing the join.
func (b *SpawnBook) ClaimSpawnFor(id int64, layout Layout, rng *rand.Rand, allow func(area string) bool, logger *log.Logger) (Position, []int64) {
	if old, ok := b.claims[id]; ok {
		return old, nil
	}
	if layout == nil || !layout.Ready() {
		if logger != nil {
			logger.Printf("WARN layout unavailable, fallback spawn for %d", id)
		}
		return b.claimFallback(id), nil
	}

	var free []Position
	for _, area := range layout.Areas() {
		if allow != nil && !allow(area) {
			continue
		}
		for _, pos := range layout.CandidateSpawns(area) {
			holder, taken := b.byPos[posKey{pos.Area, pos.Slot}]
			if taken && !b.extras[holder] {
				continue
			}
			free = append(free, pos)
		}
	}
	if len(free) == 0 {
		if logger != nil {
			logger.Printf("WARN no free spawn slots, fallback spawn for %d", id)
		}
		return b.claimFallback(id), nil
	}

	pos := free[rng.Intn(len(free))]
	var despawned []int64
	if holder, taken := b.byPos[posKey{pos.Area, pos.Slot}]; taken && b.extras[holder] {
		b.release(holder)
		delete(b.extras, holder)
		despawned = append(despawned, holder)
	}
	b.claims[id] = pos
	b.byPos[posKey{pos.Area, pos.Slot}] = id
	return pos, despawned
}

// PlaceExtra reserves a free slot for a transient extra. Returns false when
// no slot is available.
func (b *SpawnBook) PlaceExtra(id int64, layout Layout, rng *rand.Rand) (Position, bool) {
	if layout == nil || !layout.Ready() {
		return Position{}, false
	}
	var free []Position
	for _, area := range layout.Areas() {
		for _, pos := range layout.CandidateSpawns(area) {
			if _, taken := b.byPos[posKey{pos.Area, pos.Slot}]; taken {
				continue
			}
			free = append(free, pos)
		}
	}
	if len(free) == 0 {
		return Position{}, false
	}
	pos := free[rng.Intn(len(free))]
	b.claims[id] = pos
	b.byPos[posKey{pos.Area, pos.Slot}] = id
	b.extras[id] = true
	return pos, true
}

func (b *SpawnBook) ReleaseClaim(id int64) {
	b.release(id)
	delete(b.extras, id)
}

func (b *SpawnBook) release(id int64) {
	pos, ok := b.claims[id]
	if !ok {
		return
	}
	delete(b.claims, id)
	k := posKey{pos.Area, pos.Slot}
	if b.byPos[k] == id {
		delete(b.byPos, k)
	}
}

func (b *SpawnBook) ClaimOf(id int64) (Position, bool) {
	pos, ok := b.claims[id]
	return pos, ok
}

// RestoreClaim re-establishes a claim for a reattaching participant. The
// slot may have been taken while they were away, in which case the claim is
// refused and the caller falls back to a fresh one.
func (b *SpawnBook) RestoreClaim(id int64, pos Position) bool {
	k := posKey{pos.Area, pos.Slot}
	if holder, taken := b.byPos[k]; taken && holder != id {
		return false
	}
	b.claims[id] = pos
	b.byPos[k] = id
	return true
}

func (b *SpawnBook) ExtraIDs() []int64 {
	out := make([]int64, 0, len(b.extras))
	for id := range b.extras {
		out = append(out, id)
	}
	return out
}

func (b *SpawnBook) claimFallback(id int64) Position {
	pos := Position{Area: "fallback", Slot: b.fallbackSlot}
	b.fallbackSlot++
	b.claims[id] = pos
	b.byPos[posKey{pos.Area, pos.Slot}] = id
	return pos
}

func (b *SpawnBook) Reset() {
	b.claims = map[int64]Position{}
	b.byPos = map[posKey]int64{}
	b.extras = map[int64]bool{}
	b.fallbackSlot = 0
}
