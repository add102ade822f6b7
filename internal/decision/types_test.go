package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAction(t *testing.T) {
	cases := map[string]ActionType{
		"buy":   ActionBuy,
		" LONG": ActionBuy,
		"Sell":  ActionSell,
		"short": ActionSell,
		"hold":  ActionHold,
		"WAIT":  ActionHold,
	}
	for in, want := range cases {
		got, ok := ParseAction(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	got, ok := ParseAction("moon")
	assert.False(t, ok)
	assert.Equal(t, ActionHold, got)
}

func TestActionCodes(t *testing.T) {
	for i, a := range Actions {
		got, ok := ActionFromCode(i)
		assert.True(t, ok)
		assert.Equal(t, a, got)
		assert.Equal(t, i, a.Index())
	}
	got, ok := ActionFromCode(7)
	assert.False(t, ok)
	assert.Equal(t, ActionHold, got)
	assert.False(t, ActionType("X").Valid())
}
