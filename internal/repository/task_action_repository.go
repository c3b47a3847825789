package repository

import (
	"context"
	"fmt"

	"brigadebot/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TaskActionRepository struct {
	db *pgxpool.Pool
}

func NewTaskActionRepository(db *pgxpool.Pool) *TaskActionRepository {
	return &TaskActionRepository{db: db}
}

// Append writes one log row. The payload is stored as-is; an empty payload
// becomes SQL NULL.
func (r *TaskActionRepository) Append(ctx context.Context, action *entities.TaskAction) error {
	var payload any
	if len(action.Payload) > 0 {
		payload = string(action.Payload)
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO task_actions (bitrix_task_id, tg_user_id, action, payload)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING id, created_at`,
		action.BitrixTaskID, action.TgUserID, action.Action, payload,
	).Scan(&action.ID, &action.CreatedAt)
	if err != nil {
		return fmt.Errorf("append task action: %w", err)
	}
	return nil
}

func (r *TaskActionRepository) ListRecent(ctx context.Context, limit int) ([]entities.TaskAction, error) {
	return r.list(ctx, `
		SELECT id, bitrix_task_id, tg_user_id, action, payload, created_at
		FROM task_actions ORDER BY id DESC LIMIT $1`, limit)
}

func (r *TaskActionRepository) ListByTask(ctx context.Context, taskID int64, limit int) ([]entities.TaskAction, error) {
	return r.list(ctx, `
		SELECT id, bitrix_task_id, tg_user_id, action, payload, created_at
		FROM task_actions WHERE bitrix_task_id = $1 ORDER BY id DESC LIMIT $2`, taskID, limit)
}

func (r *TaskActionRepository) list(ctx context.Context, query string, args ...any) ([]entities.TaskAction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list task actions: %w", err)
	}
	defer rows.Close()

	actions := []entities.TaskAction{}
	for rows.Next() {
		var (
			a       entities.TaskAction
			taskID  *int64
			userID  *int64
			label   *string
			payload []byte
		)
		if err := rows.Scan(&a.ID, &taskID, &userID, &label, &payload, &a.CreatedAt); err != nil {
			return nil, err
		}
		if taskID != nil {
			a.BitrixTaskID = *taskID
		}
		if userID != nil {
			a.TgUserID = *userID
		}
		if label != nil {
			a.Action = *label
		}
		a.Payload = payload
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
