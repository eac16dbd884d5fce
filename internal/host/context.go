package host

import "sync"

// GameContext exposes the parts of the host's game state the sync needs.
type GameContext interface {
	// Mode is the game speed setting, e.g. "slow" for legacy games.
	Mode() string
	// Instance identifies the running game.
	Instance() string
}

// StaticContext is a fixed GameContext.
type StaticContext struct {
	ModeValue  string
	InstanceID string
}

func (c StaticContext) Mode() string     { return c.ModeValue }
func (c StaticContext) Instance() string { return c.InstanceID }

// GameState mirrors the subset of the host's game state frame that carries
// the speed setting and instance id.
type GameState struct {
	Game struct {
		Time struct {
			Speed string `json:"speed"`
		} `json:"time"`
		Auth struct {
			Instance string `json:"instance"`
		} `json:"auth"`
	} `json:"game"`
}

// StateContext is a GameContext kept current from host game-state frames.
// It is safe for concurrent use.
type StateContext struct {
	mu       sync.RWMutex
	mode     string
	instance string
}

// NewStateContext seeds the context with initial values.
func NewStateContext(mode, instance string) *StateContext {
	return &StateContext{mode: mode, instance: instance}
}

// Apply copies the non-empty fields of gs.
func (c *StateContext) Apply(gs GameState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := gs.Game.Time.Speed; s != "" {
		c.mode = s
	}
	if id := gs.Game.Auth.Instance; id != "" {
		c.instance = id
	}
}

func (c *StateContext) Mode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *StateContext) Instance() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instance
}
