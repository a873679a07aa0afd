package session

import (
	"os"
	"path/filepath"
	"testing"
)

const layoutYAML = `areas:
  - name: command
    spawns:
      - { slot: 1, x: 8.0, z: 4.0 }
      - { slot: 0, x: 4.0, z: 4.0 }
  - name: docks
    spawns:
      - { slot: 0, x: 40.0, z: 12.0 }
`

func TestFileLayoutLoadsOnceReady(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.yaml")
	l := NewFileLayout(path)

	if l.Ready() {
		t.Fatalf("layout ready before file exists")
	}

	if err := os.WriteFile(path, []byte(layoutYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !l.Ready() {
		t.Fatalf("layout not ready after file appears")
	}
	if l.AreaCount() != 2 {
		t.Fatalf("areas = %d", l.AreaCount())
	}

	spawns := l.CandidateSpawns("command")
	if len(spawns) != 2 {
		t.Fatalf("command spawns = %d", len(spawns))
	}
	// Slots are sorted regardless of file order.
	if spawns[0].Slot != 0 || spawns[1].Slot != 1 {
		t.Fatalf("spawn order = %v", spawns)
	}
	if spawns[0].Area != "command" {
		t.Fatalf("area = %q", spawns[0].Area)
	}
}

func TestFileLayoutRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.yaml")
	if err := os.WriteFile(path, []byte("areas: []\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if NewFileLayout(path).Ready() {
		t.Fatalf("empty layout reported ready")
	}
}

func TestValidateLayout(t *testing.T) {
	if err := ValidateLayout(testLayout()); err != nil {
		t.Fatalf("valid layout rejected: %v", err)
	}
	bad := NewStaticLayout().AddArea("empty")
	if err := ValidateLayout(bad); err == nil {
		t.Fatalf("area without slots validated")
	}
}
