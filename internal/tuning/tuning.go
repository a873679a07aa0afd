package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the playtest-derived knobs of the session layer. The grace
// and dedupe durations were tuned empirically, so they live in config rather
// than in code.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz        int   `yaml:"tick_rate_hz"`
	SessionClockMs    int64 `yaml:"session_clock_ms"`
	JoinGraceMs       int64 `yaml:"join_grace_ms"`
	DisconnectGraceMs int64 `yaml:"disconnect_grace_ms"`
	DedupeWindowMs    int64 `yaml:"dedupe_window_ms"`
	ContentWaitMs     int64 `yaml:"content_wait_ms"`
	ContentPollMs     int64 `yaml:"content_poll_ms"`

	ExtraCount  int    `yaml:"extra_count"`
	CommandArea string `yaml:"command_area"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	return t, nil
}

func Defaults() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 20
	}
	if t.SessionClockMs <= 0 {
		t.SessionClockMs = 300_000
	}
	if t.JoinGraceMs <= 0 {
		t.JoinGraceMs = 5000
	}
	if t.DisconnectGraceMs <= 0 {
		t.DisconnectGraceMs = 5000
	}
	if t.DedupeWindowMs <= 0 {
		t.DedupeWindowMs = 500
	}
	if t.ContentWaitMs <= 0 {
		t.ContentWaitMs = 8000
	}
	if t.ContentPollMs <= 0 {
		t.ContentPollMs = 500
	}
	if t.ExtraCount < 0 {
		t.ExtraCount = 0
	} else if t.ExtraCount == 0 {
		t.ExtraCount = 6
	}
	if t.CommandArea == "" {
		t.CommandArea = "command"
	}
}
