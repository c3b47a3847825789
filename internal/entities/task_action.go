package entities

import (
	"encoding/json"
	"time"
)

// Action labels written by the bot.
const (
	ActionDone       = "done"
	ActionDoneFailed = "done_failed"
	ActionComment    = "comment"
	ActionDealMove   = "deal_move"
)

// TaskAction is one row of the append-only task_actions log.
type TaskAction struct {
	ID           int64           `json:"id"`
	BitrixTaskID int64           `json:"bitrix_task_id"`
	TgUserID     int64           `json:"tg_user_id"`
	Action       string          `json:"action"`
	Payload      json.RawMessage `json:"payload,omitempty"` // any JSON document
	CreatedAt    time.Time       `json:"created_at"`
}
