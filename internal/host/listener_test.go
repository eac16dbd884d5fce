package host

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/incomesync/internal/projection"
)

type recordingSink struct {
	got []projection.Income
	at  []time.Time
}

func (s *recordingSink) ApplyIncome(in projection.Income, at time.Time) {
	s.got = append(s.got, in)
	s.at = append(s.at, at)
}

func decodeEvent(t *testing.T, raw string) Event {
	t.Helper()
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return ev
}

const playerUpdate = `{"player_player": {
	"credit": {"value": 50, "change": 10},
	"technology": {"value": 7, "change": 1.5},
	"ideology": {"value": 3, "change": -2}
}}`

func TestListener_ForwardsLegacyPlayerUpdates(t *testing.T) {
	sink := &recordingSink{}
	fixed := time.Unix(1000, 0)
	l := NewListener(StaticContext{ModeValue: "slow", InstanceID: "g1"}, sink, "")
	l.now = func() time.Time { return fixed }

	require.True(t, l.Update(decodeEvent(t, playerUpdate)))
	require.Len(t, sink.got, 1)

	in := sink.got[0]
	assert.Equal(t, projection.Resource{Value: 50, Change: 10}, in.Credit)
	assert.Equal(t, projection.Resource{Value: 7, Change: 1.5}, in.Technology)
	assert.Equal(t, projection.Resource{Value: 3, Change: -2}, in.Ideology)
	assert.Equal(t, fixed, sink.at[0])
}

func TestListener_IgnoresOtherEventShapes(t *testing.T) {
	sink := &recordingSink{}
	l := NewListener(StaticContext{ModeValue: "slow"}, sink, "")

	assert.False(t, l.Update(decodeEvent(t, `{"planet_planet": {"id": 4}}`)))
	assert.False(t, l.Update(decodeEvent(t, `{}`)))
	assert.False(t, l.Update(decodeEvent(t, `{"player_player": {"credit": {"value": 1, "change": 1}}}`)))
	assert.Empty(t, sink.got)
}

func TestListener_IgnoresNonLegacyModes(t *testing.T) {
	sink := &recordingSink{}
	l := NewListener(StaticContext{ModeValue: "fast"}, sink, "")

	assert.False(t, l.Update(decodeEvent(t, playerUpdate)))
	assert.Empty(t, sink.got)
}

func TestFeed_AppliesGameStateThenEvents(t *testing.T) {
	sink := &recordingSink{}
	state := NewStateContext("", "")
	l := NewListener(state, sink, "")

	input := strings.Join([]string{
		strings.ReplaceAll(playerUpdate, "\n", " "),
		`{"gamestate": {"game": {"time": {"speed": "slow"}, "auth": {"instance": "inst-9"}}}}`,
		``,
		`not json`,
		strings.ReplaceAll(playerUpdate, "\n", " "),
		`{"tick": 3}`,
	}, "\n")

	st, err := Feed(context.Background(), strings.NewReader(input), l, state)
	require.NoError(t, err)

	assert.Equal(t, FeedStats{Lines: 5, Forwarded: 1, Ignored: 2, Malformed: 1}, st)
	assert.Len(t, sink.got, 1)
	assert.Equal(t, "slow", state.Mode())
	assert.Equal(t, "inst-9", state.Instance())
}

func TestFeed_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewListener(StaticContext{ModeValue: "slow"}, &recordingSink{}, "")
	_, err := Feed(ctx, strings.NewReader(`{}`+"\n"), l, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
