package telegram

import (
	"strconv"

	"brigadebot/internal/entities"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data prefixes.
const (
	cbTeamChange = "team:change"
	cbTeamSet    = "team:set:"
)

// TeamKeyboard lays out one button per team: two in the first row, then
// rows of three.
func TeamKeyboard(teams []entities.Team) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton

	rowSize := 2
	for _, t := range teams {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(t.Name, cbTeamSet+strconv.FormatInt(t.ID, 10)))
		if len(row) == rowSize {
			rows = append(rows, row)
			row = nil
			rowSize = 3
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// ChangeTeamKeyboard offers to pick another team.
func ChangeTeamKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔁 Change team", cbTeamChange),
		),
	)
}
