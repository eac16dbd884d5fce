package host

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// frame is one line of host output: either a game-state update or a hook
// event.
type frame struct {
	GameState *GameState `json:"gamestate"`
	Event
}

// FeedStats counts what Feed did with the lines it read.
type FeedStats struct {
	Lines     int
	Forwarded int
	Ignored   int
	Malformed int
}

// Feed reads newline-delimited JSON frames from r until EOF or ctx is done.
// Game-state frames update state (when non-nil); all other frames go to l.
// Malformed lines are counted and skipped.
func Feed(ctx context.Context, r io.Reader, l *Listener, state *StateContext) (FeedStats, error) {
	var st FeedStats

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		st.Lines++

		var f frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			st.Malformed++
			continue
		}

		if f.GameState != nil {
			if state != nil {
				state.Apply(*f.GameState)
			}
			if f.PlayerPlayer == nil {
				continue
			}
		}

		if l.Update(f.Event) {
			st.Forwarded++
		} else {
			st.Ignored++
		}
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("reading host feed: %w", err)
	}
	return st, nil
}
