package interfaces

import (
	"context"

	"brigadebot/internal/entities"
	"brigadebot/internal/infrastructure"
)

type UserStore interface {
	GetByTelegramID(ctx context.Context, tgUserID int64) (*entities.User, error)
	UpsertTeam(ctx context.Context, tgUserID int64, fullName string, teamID int64) (*entities.User, error)
	LinkBitrix(ctx context.Context, tgUserID, bitrixUserID int64) error
	SetRole(ctx context.Context, tgUserID int64, role string) error
	ListByTeam(ctx context.Context, teamID int64) ([]entities.User, error)
	ListAll(ctx context.Context) ([]entities.User, error)
}

type TeamStore interface {
	Create(ctx context.Context, team entities.Team) error
	Get(ctx context.Context, id int64) (*entities.Team, error)
	List(ctx context.Context) ([]entities.Team, error)
}

type ActionLog interface {
	Append(ctx context.Context, action *entities.TaskAction) error
	ListRecent(ctx context.Context, limit int) ([]entities.TaskAction, error)
	ListByTask(ctx context.Context, taskID int64, limit int) ([]entities.TaskAction, error)
}

// TaskTracker is the subset of the Bitrix24 API the bot uses.
type TaskTracker interface {
	ListTasks(ctx context.Context, filter map[string]any, selectFields []string) ([]infrastructure.BitrixTask, error)
	CompleteTask(ctx context.Context, taskID int64) error
	AddComment(ctx context.Context, taskID int64, text string) error
	SearchUserByEmail(ctx context.Context, email string) ([]infrastructure.BitrixUser, error)
	ListDealStages(ctx context.Context, categoryID int64) ([]infrastructure.DealStage, error)
	ListDeals(ctx context.Context, filter map[string]any, selectFields []string, order map[string]string, start int) (*infrastructure.DealPage, error)
	MoveDealToStage(ctx context.Context, dealID int64, stageID string) error
	CommentDeal(ctx context.Context, dealID int64, text string) error
	TaskURL(taskID int64) string
}

type Messenger interface {
	SendText(chatID int64, text string) error
}
