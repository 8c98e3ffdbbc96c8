package engine

import (
	"math/rand/v2"
	"sync"

	"github.com/roach88/vacc/internal/lattice"
)

// liveSettings is the settings map shared by the cycle loop and setpoint
// ingestion.
type liveSettings struct {
	mu     sync.Mutex
	values lattice.Settings
}

func newLiveSettings(initial lattice.Settings) *liveSettings {
	return &liveSettings{values: initial.Clone()}
}

// Set stores the exact value written by a client.
func (l *liveSettings) Set(channel string, v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values.Set(channel, v)
}

// Clone returns a copy of the current settings.
func (l *liveSettings) Clone() lattice.Settings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.values.Clone()
}

// Snapshot copies the settings under one lock acquisition and returns the
// raw copy together with a jittered copy. Each jittered value is
// v*(1+noise*u) with u drawn uniformly from [-1, 1). The live map is not
// modified.
func (l *liveSettings) Snapshot(noise float64, rng *rand.Rand) (raw, jittered lattice.Settings) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw = l.values.Clone()
	jittered = make(lattice.Settings, len(raw))
	// Sorted order keeps the draws reproducible for a seeded rng.
	for _, ch := range raw.Channels() {
		v := raw[ch].VAL
		if noise != 0 {
			v *= 1 + noise*(2*rng.Float64()-1)
		}
		jittered.Set(ch, v)
	}
	return raw, jittered
}
