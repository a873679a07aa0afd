package session

import (
	"io"
	"log"
	"math/rand"
	"testing"
)

func TestAssignRolesExactlyOneHunter(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	ids := []int64{1, 2, 3, 4, 5}
	for seed := int64(0); seed < 200; seed++ {
		draw, ok := AssignRoles(ids, rand.NewSource(seed), logger)
		if !ok {
			t.Fatalf("seed %d: draw failed", seed)
		}
		if len(draw.InfiltratorIDs) != len(ids)-1 {
			t.Fatalf("seed %d: infiltrators = %d", seed, len(draw.InfiltratorIDs))
		}
		for _, id := range draw.InfiltratorIDs {
			if id == draw.HunterID {
				t.Fatalf("seed %d: hunter %d also infiltrator", seed, id)
			}
		}
	}
}

func TestAssignRolesEmptyRoster(t *testing.T) {
	if _, ok := AssignRoles(nil, rand.NewSource(1), nil); ok {
		t.Fatalf("empty roster produced a draw")
	}
}

func TestAssignRolesSoloParticipant(t *testing.T) {
	draw, ok := AssignRoles([]int64{7}, rand.NewSource(1), nil)
	if !ok {
		t.Fatalf("solo draw failed")
	}
	if draw.HunterID != 7 || len(draw.InfiltratorIDs) != 0 {
		t.Fatalf("solo draw = %+v", draw)
	}
}

func TestAssignRolesCoversEveryone(t *testing.T) {
	ids := []int64{10, 20, 30}
	seen := map[int64]int{}
	for seed := int64(0); seed < 300; seed++ {
		draw, _ := AssignRoles(ids, rand.NewSource(seed), nil)
		seen[draw.HunterID]++
	}
	for _, id := range ids {
		if seen[id] == 0 {
			t.Fatalf("participant %d never drawn as hunter over 300 seeds", id)
		}
	}
}
