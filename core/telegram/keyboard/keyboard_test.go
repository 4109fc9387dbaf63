package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/flowbot/core/flow/graph"
)

func TestBuildNil(t *testing.T) {
	assert.Nil(t, Build(nil))
}

func TestBuildInlineForNavigation(t *testing.T) {
	m := Build([][]graph.Button{
		{{Label: "Go", Target: "next_step"}},
		{{Label: "Docs", URL: "https://example.com"}},
	})
	require.NotNil(t, m)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Equal(t, "Go", m.InlineKeyboard[0][0].Text)
	assert.Contains(t, m.InlineKeyboard[0][0].Data, "next_step")
	assert.Equal(t, "https://example.com", m.InlineKeyboard[1][0].URL)
	assert.Empty(t, m.ReplyKeyboard)
}

func TestBuildReplyForPlainLabels(t *testing.T) {
	m := Build([][]graph.Button{
		{{Label: "Yes"}, {Label: "No"}},
	})
	require.NotNil(t, m)
	require.Len(t, m.ReplyKeyboard, 1)
	require.Len(t, m.ReplyKeyboard[0], 2)
	assert.Equal(t, "Yes", m.ReplyKeyboard[0][0].Text)
	assert.True(t, m.ResizeKeyboard)
	assert.True(t, m.OneTimeKeyboard)
	assert.Empty(t, m.InlineKeyboard)
}

func TestBuildInlineWinsWhenMixed(t *testing.T) {
	m := Build([][]graph.Button{
		{{Label: "Skip", Skip: true, Target: "later"}, {Label: "Plain"}},
	})
	require.NotNil(t, m)
	assert.NotEmpty(t, m.InlineKeyboard)
}
