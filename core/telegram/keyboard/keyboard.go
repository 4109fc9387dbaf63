// Package keyboard renders flow buttons into Telegram reply markup.
package keyboard

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow/graph"
)

// FlowUnique is the callback namespace for flow navigation buttons.
const FlowUnique = "flow"

// Build converts button rows into Telegram markup. Buttons that navigate,
// carry a value, or open a URL become an inline keyboard; rows of plain
// labels become a one-time reply keyboard of suggested answers.
func Build(rows [][]graph.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	if inline(rows) {
		return buildInline(rows)
	}
	return buildReply(rows)
}

func inline(rows [][]graph.Button) bool {
	for _, row := range rows {
		for _, b := range row {
			if b.Target != "" || b.URL != "" || b.Value != "" || b.Skip {
				return true
			}
		}
	}
	return false
}

func buildInline(rows [][]graph.Button) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	teleRows := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				btns = append(btns, m.URL(b.Label, b.URL))
				continue
			}
			// data carries target then label so the press can be matched
			// either way on the far side
			btns = append(btns, m.Data(b.Label, FlowUnique, b.Target, b.Label))
		}
		teleRows = append(teleRows, m.Row(btns...))
	}
	m.Inline(teleRows...)
	return m
}

func buildReply(rows [][]graph.Button) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	teleRows := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			btns = append(btns, m.Text(b.Label))
		}
		teleRows = append(teleRows, m.Row(btns...))
	}
	m.Reply(teleRows...)
	return m
}
