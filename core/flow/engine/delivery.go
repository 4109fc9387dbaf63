package engine

import (
	"context"

	"github.com/m3rciful/flowbot/core/flow/graph"
)

// Message is one outbound rendering: final text plus keyboard rows.
type Message struct {
	Text     string
	Keyboard [][]graph.Button
	// EditMessageID asks the transport to edit this previous message in
	// place. Zero means send a new message.
	EditMessageID int
	// ForceNew suppresses editing even when a previous message id is
	// known. Auto-advance chains always send fresh messages so no step
	// overwrites the one before it.
	ForceNew bool
}

// Delivery sends rendered messages to the user. Implementations return the
// transport message id so the engine can edit in place later.
type Delivery interface {
	Deliver(ctx context.Context, userID int64, msg Message) (messageID int, err error)
}

// Rows groups a flat button list into keyboard rows. Buttons with the same
// row index share a line; zero-valued rows fall back to one button per line
// in declaration order.
func Rows(buttons []graph.Button) [][]graph.Button {
	if len(buttons) == 0 {
		return nil
	}
	grouped := false
	for _, b := range buttons {
		if b.Row > 0 {
			grouped = true
			break
		}
	}
	if !grouped {
		rows := make([][]graph.Button, 0, len(buttons))
		for _, b := range buttons {
			rows = append(rows, []graph.Button{b})
		}
		return rows
	}
	byRow := make(map[int][]graph.Button)
	maxRow := 0
	for _, b := range buttons {
		byRow[b.Row] = append(byRow[b.Row], b)
		if b.Row > maxRow {
			maxRow = b.Row
		}
	}
	rows := make([][]graph.Button, 0, len(byRow))
	for i := 0; i <= maxRow; i++ {
		if row, ok := byRow[i]; ok {
			rows = append(rows, row)
		}
	}
	return rows
}
