package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"brigadebot/internal/entities"
	"brigadebot/internal/infrastructure"
	"brigadebot/internal/interfaces"
	"brigadebot/internal/logger"
)

const (
	DefaultDoneComment = "Completed via Telegram bot"
	maxOpenTasks       = 20
	// Bitrix task status 5 is "completed"; anything below is still open.
	statusCompleted = 5
)

// CommentError means the task was completed but the follow-up comment failed.
type CommentError struct {
	TaskID int64
	Err    error
}

func (e *CommentError) Error() string {
	return fmt.Sprintf("task %d completed, comment not saved: %v", e.TaskID, e.Err)
}

func (e *CommentError) Unwrap() error { return e.Err }

// UnknownStageError means the stage does not exist in the deal pipeline.
type UnknownStageError struct {
	Stage string
	Valid []string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage %s, valid: %s", e.Stage, strings.Join(e.Valid, ", "))
}

// TaskUsecase performs task and deal actions in Bitrix on behalf of a
// Telegram user and records them in the action log.
type TaskUsecase struct {
	tracker interfaces.TaskTracker
	actions interfaces.ActionLog
	log     *logger.Logger
}

func NewTaskUsecase(tracker interfaces.TaskTracker, actions interfaces.ActionLog, log *logger.Logger) *TaskUsecase {
	return &TaskUsecase{tracker: tracker, actions: actions, log: log.Named("tasks")}
}

// Complete closes the task and leaves a comment. A completion failure is
// logged as done_failed and returned.
func (uc *TaskUsecase) Complete(ctx context.Context, tgUserID, chatID, taskID int64, comment string) error {
	if comment == "" {
		comment = DefaultDoneComment
	}

	if err := uc.tracker.CompleteTask(ctx, taskID); err != nil {
		uc.record(ctx, taskID, tgUserID, entities.ActionDoneFailed, map[string]any{
			"comment": comment,
			"chat_id": chatID,
			"error":   err.Error(),
		})
		return err
	}

	payload := map[string]any{"comment": comment, "chat_id": chatID}
	commentErr := uc.tracker.AddComment(ctx, taskID, comment)
	if commentErr != nil {
		payload["comment_error"] = commentErr.Error()
	}
	uc.record(ctx, taskID, tgUserID, entities.ActionDone, payload)
	uc.log.Audit("task completed", "task_id", taskID, "tg_user_id", tgUserID)

	if commentErr != nil {
		return &CommentError{TaskID: taskID, Err: commentErr}
	}
	return nil
}

func (uc *TaskUsecase) Comment(ctx context.Context, tgUserID, chatID, taskID int64, text string) error {
	if err := uc.tracker.AddComment(ctx, taskID, text); err != nil {
		return err
	}
	uc.record(ctx, taskID, tgUserID, entities.ActionComment, map[string]any{"comment": text, "chat_id": chatID})
	return nil
}

// OpenTasks lists up to 20 unfinished tasks of a Bitrix user.
func (uc *TaskUsecase) OpenTasks(ctx context.Context, bitrixUserID int64) ([]infrastructure.BitrixTask, error) {
	tasks, err := uc.tracker.ListTasks(ctx,
		map[string]any{"RESPONSIBLE_ID": bitrixUserID, "<REAL_STATUS": statusCompleted},
		[]string{"ID", "TITLE", "DEADLINE", "STATUS"})
	if err != nil {
		return nil, err
	}
	if len(tasks) > maxOpenTasks {
		tasks = tasks[:maxOpenTasks]
	}
	return tasks, nil
}

// MoveDeal moves a CRM deal to another stage and optionally comments on it.
func (uc *TaskUsecase) MoveDeal(ctx context.Context, tgUserID, chatID, dealID int64, stageID, comment string) error {
	if err := uc.checkStage(ctx, stageID); err != nil {
		return err
	}
	if err := uc.tracker.MoveDealToStage(ctx, dealID, stageID); err != nil {
		return err
	}
	payload := map[string]any{"entity": "deal", "stage_id": stageID, "chat_id": chatID}
	var commentErr error
	if comment != "" {
		payload["comment"] = comment
		if commentErr = uc.tracker.CommentDeal(ctx, dealID, comment); commentErr != nil {
			payload["comment_error"] = commentErr.Error()
		}
	}
	uc.record(ctx, dealID, tgUserID, entities.ActionDealMove, payload)
	if commentErr != nil {
		return &CommentError{TaskID: dealID, Err: commentErr}
	}
	return nil
}

// Deals returns one page of deals, optionally narrowed to a pipeline or stage.
func (uc *TaskUsecase) Deals(ctx context.Context, categoryID *int64, stageID string, start int) (*infrastructure.DealPage, error) {
	filter := map[string]any{}
	if categoryID != nil {
		filter["CATEGORY_ID"] = *categoryID
	}
	if stageID != "" {
		filter["STAGE_ID"] = stageID
	}
	return uc.tracker.ListDeals(ctx, filter, []string{"ID", "TITLE", "STAGE_ID", "CATEGORY_ID", "ASSIGNED_BY_ID", "DATE_MODIFY"}, nil, start)
}

// DealStages lists the stages of one pipeline.
func (uc *TaskUsecase) DealStages(ctx context.Context, categoryID int64) ([]infrastructure.DealStage, error) {
	return uc.tracker.ListDealStages(ctx, categoryID)
}

// checkStage rejects stage ids missing from the pipeline they name. A failed
// stage lookup does not block the move; Bitrix still validates it.
func (uc *TaskUsecase) checkStage(ctx context.Context, stageID string) error {
	category := stageCategory(stageID)
	stages, err := uc.tracker.ListDealStages(ctx, category)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		uc.log.Warnw("list deal stages", "category_id", category, "error", err)
		return nil
	}
	if len(stages) == 0 {
		return nil
	}
	valid := make([]string, 0, len(stages))
	for _, st := range stages {
		if st.StatusID == stageID {
			return nil
		}
		valid = append(valid, st.StatusID)
	}
	return &UnknownStageError{Stage: stageID, Valid: valid}
}

// stageCategory extracts the pipeline from ids like "C3:WON". Stages of the
// default pipeline carry no prefix.
func stageCategory(stageID string) int64 {
	prefix, _, ok := strings.Cut(stageID, ":")
	if !ok || !strings.HasPrefix(prefix, "C") {
		return 0
	}
	n, err := strconv.ParseInt(prefix[1:], 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (uc *TaskUsecase) TaskURL(taskID int64) string {
	return uc.tracker.TaskURL(taskID)
}

// record appends to the action log. Logging failures never undo a Bitrix
// change that already happened, so they are only reported.
func (uc *TaskUsecase) record(ctx context.Context, taskID, tgUserID int64, action string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		uc.log.Errorw("encode action payload", "error", err)
		return
	}
	err = uc.actions.Append(ctx, &entities.TaskAction{
		BitrixTaskID: taskID,
		TgUserID:     tgUserID,
		Action:       action,
		Payload:      raw,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		uc.log.Errorw("append task action", "task_id", taskID, "action", action, "error", err)
	}
}
