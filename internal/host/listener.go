// Package host adapts the game host's hook events and game state into
// projection updates.
package host

import (
	"time"

	"github.com/theirongolddev/incomesync/internal/projection"
)

// LegacyMode is the game speed whose income is synced. Other modes would
// overwrite a legacy player's sheet with unrelated figures.
const LegacyMode = "slow"

// Resource is the host's {value, change} pair.
type Resource struct {
	Value  float64 `json:"value"`
	Change float64 `json:"change"`
}

// PlayerIncome is the player_player payload.
type PlayerIncome struct {
	Credit     *Resource `json:"credit"`
	Technology *Resource `json:"technology"`
	Ideology   *Resource `json:"ideology"`
}

// Event is a hook event. Only player updates carry income.
type Event struct {
	PlayerPlayer *PlayerIncome `json:"player_player"`
}

// IncomeSink receives accepted authoritative updates.
type IncomeSink interface {
	ApplyIncome(in projection.Income, at time.Time)
}

// Listener filters host events and forwards player income.
type Listener struct {
	game GameContext
	sink IncomeSink
	mode string
	now  func() time.Time
}

// NewListener returns a listener that forwards to sink while game reports
// mode. An empty mode means LegacyMode.
func NewListener(game GameContext, sink IncomeSink, mode string) *Listener {
	if mode == "" {
		mode = LegacyMode
	}
	return &Listener{game: game, sink: sink, mode: mode, now: time.Now}
}

// Update handles one host event and reports whether it was forwarded.
func (l *Listener) Update(ev Event) bool {
	in, ok := incomeOf(ev)
	if !ok {
		return false
	}
	if l.game.Mode() != l.mode {
		return false
	}

	l.sink.ApplyIncome(in, l.now())
	return true
}

func incomeOf(ev Event) (projection.Income, bool) {
	p := ev.PlayerPlayer
	if p == nil || p.Credit == nil || p.Technology == nil || p.Ideology == nil {
		return projection.Income{}, false
	}
	return projection.Income{
		Credit:     projection.Resource(*p.Credit),
		Technology: projection.Resource(*p.Technology),
		Ideology:   projection.Resource(*p.Ideology),
	}, true
}
