package session

import "manhunt.gg/internal/tuning"

// SessionConfig is the per-session shape of the tuning file, with durations
// converted to ticks. Zero values are backstopped by applyDefaults so tests
// can construct partial configs.
type SessionConfig struct {
	TickRateHz int

	ClockTicks           uint64
	JoinGraceTicks       uint64
	DisconnectGraceTicks uint64
	DedupeWindowTicks    uint64
	ContentWaitTicks     uint64
	ContentPollTicks     uint64

	ExtraCount  int
	CommandArea string
}

func ConfigFromTuning(t tuning.Tuning) SessionConfig {
	hz := t.TickRateHz
	if hz <= 0 {
		hz = 20
	}
	c := SessionConfig{
		TickRateHz:           hz,
		ClockTicks:           msToTicks(t.SessionClockMs, hz),
		JoinGraceTicks:       msToTicks(t.JoinGraceMs, hz),
		DisconnectGraceTicks: msToTicks(t.DisconnectGraceMs, hz),
		DedupeWindowTicks:    msToTicks(t.DedupeWindowMs, hz),
		ContentWaitTicks:     msToTicks(t.ContentWaitMs, hz),
		ContentPollTicks:     msToTicks(t.ContentPollMs, hz),
		ExtraCount:           t.ExtraCount,
		CommandArea:          t.CommandArea,
	}
	c.applyDefaults()
	return c
}

func msToTicks(ms int64, hz int) uint64 {
	if ms <= 0 {
		return 0
	}
	ticks := ms * int64(hz) / 1000
	if ticks < 1 {
		ticks = 1
	}
	return uint64(ticks)
}

func ticksToMs(ticks uint64, hz int) int64 {
	if hz <= 0 {
		return 0
	}
	return int64(ticks) * 1000 / int64(hz)
}

func (c *SessionConfig) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	hz := c.TickRateHz
	if c.ClockTicks == 0 {
		c.ClockTicks = msToTicks(300_000, hz)
	}
	if c.JoinGraceTicks == 0 {
		c.JoinGraceTicks = msToTicks(5000, hz)
	}
	if c.DisconnectGraceTicks == 0 {
		c.DisconnectGraceTicks = msToTicks(5000, hz)
	}
	if c.DedupeWindowTicks == 0 {
		c.DedupeWindowTicks = msToTicks(500, hz)
	}
	if c.ContentWaitTicks == 0 {
		c.ContentWaitTicks = msToTicks(8000, hz)
	}
	if c.ContentPollTicks == 0 {
		c.ContentPollTicks = msToTicks(500, hz)
	}
	if c.ExtraCount < 0 {
		c.ExtraCount = 0
	}
	if c.CommandArea == "" {
		c.CommandArea = "command"
	}
}
