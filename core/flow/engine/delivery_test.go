package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/flowbot/core/flow/graph"
)

func TestRowsDefaultsToOnePerLine(t *testing.T) {
	rows := Rows([]graph.Button{
		{Label: "A"},
		{Label: "B"},
	})
	assert.Len(t, rows, 2)
	assert.Len(t, rows[0], 1)
}

func TestRowsGroupsByIndex(t *testing.T) {
	rows := Rows([]graph.Button{
		{Label: "A", Row: 1},
		{Label: "B", Row: 1},
		{Label: "C", Row: 2},
	})
	assert.Len(t, rows, 2)
	assert.Len(t, rows[0], 2)
	assert.Equal(t, "C", rows[1][0].Label)
}

func TestRowsEmpty(t *testing.T) {
	assert.Nil(t, Rows(nil))
}
