package session

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Position is a concrete spawn slot inside a named area.
type Position struct {
	Area string
	Slot int
	X    float64
	Z    float64
}

// Layout is the world-content view the spawn orchestrator consumes. Ready
// may flip from false to true while a session is already in Starting, so
// callers poll it rather than assume content is present at construction.
type Layout interface {
	Ready() bool
	AreaCount() int
	Areas() []string
	CandidateSpawns(area string) []Position
}

// RosterProvider reports how many participants the session should wait for
// before starting. A count of zero means "start with whoever is connected
// once the join grace expires".
type RosterProvider interface {
	ExpectedParticipantCount() int
}

// StaticLayout is an in-memory layout, always ready. Used by tests and as
// the embedded fallback when no layout file is configured.
type StaticLayout struct {
	areas map[string][]Position
	order []string
}

func NewStaticLayout() *StaticLayout {
	return &StaticLayout{areas: map[string][]Position{}}
}

func (l *StaticLayout) AddArea(name string, spawns ...Position) *StaticLayout {
	if _, ok := l.areas[name]; !ok {
		l.order = append(l.order, name)
	}
	l.areas[name] = append(l.areas[name], spawns...)
	return l
}

func (l *StaticLayout) Ready() bool    { return true }
func (l *StaticLayout) AreaCount() int { return len(l.order) }

func (l *StaticLayout) Areas() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

func (l *StaticLayout) CandidateSpawns(area string) []Position {
	src := l.areas[area]
	out := make([]Position, len(src))
	copy(out, src)
	return out
}

type layoutFile struct {
	Areas []struct {
		Name   string `yaml:"name"`
		Spawns []struct {
			Slot int     `yaml:"slot"`
			X    float64 `yaml:"x"`
			Z    float64 `yaml:"z"`
		} `yaml:"spawns"`
	} `yaml:"areas"`
}

// FileLayout loads area content from a YAML file on first successful read.
// Ready retries the load each call until it succeeds, which models content
// that finishes provisioning after the session process is already up.
type FileLayout struct {
	path   string
	loaded bool
	inner  *StaticLayout
}

func NewFileLayout(path string) *FileLayout {
	return &FileLayout{path: path, inner: NewStaticLayout()}
}

func (l *FileLayout) Ready() bool {
	if l.loaded {
		return true
	}
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return false
	}
	var f layoutFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return false
	}
	if len(f.Areas) == 0 {
		return false
	}
	inner := NewStaticLayout()
	for _, a := range f.Areas {
		spawns := make([]Position, 0, len(a.Spawns))
		for _, s := range a.Spawns {
			spawns = append(spawns, Position{Area: a.Name, Slot: s.Slot, X: s.X, Z: s.Z})
		}
		sort.Slice(spawns, func(i, j int) bool { return spawns[i].Slot < spawns[j].Slot })
		inner.AddArea(a.Name, spawns...)
	}
	l.inner = inner
	l.loaded = true
	return true
}

func (l *FileLayout) AreaCount() int { return l.inner.AreaCount() }

func (l *FileLayout) Areas() []string { return l.inner.Areas() }

func (l *FileLayout) CandidateSpawns(area string) []Position {
	return l.inner.CandidateSpawns(area)
}

// ValidateLayout is a startup sanity check for layout files.
func ValidateLayout(l Layout) error {
	if !l.Ready() {
		return fmt.Errorf("layout not ready")
	}
	if l.AreaCount() == 0 {
		return fmt.Errorf("layout has no areas")
	}
	for _, a := range l.Areas() {
		if len(l.CandidateSpawns(a)) == 0 {
			return fmt.Errorf("area %q has no spawn slots", a)
		}
	}
	return nil
}
