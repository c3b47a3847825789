package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"brigadebot/internal/entities"
	"brigadebot/internal/infrastructure"
	"brigadebot/internal/logger"
	"brigadebot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, a entities.TaskAction) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(a.Payload, &m))
	return m
}

func TestCompleteTask(t *testing.T) {
	tracker := testutil.NewTracker()
	actions := &testutil.Actions{}
	uc := NewTaskUsecase(tracker, actions, logger.Nop())

	require.NoError(t, uc.Complete(context.Background(), 100, 200, 55, ""))

	assert.Equal(t, []string{"complete:55", "comment:55:" + DefaultDoneComment}, tracker.Calls)
	last := actions.Last()
	assert.Equal(t, entities.ActionDone, last.Action)
	assert.Equal(t, int64(55), last.BitrixTaskID)
	assert.Equal(t, int64(100), last.TgUserID)
	assert.Equal(t, map[string]any{"comment": DefaultDoneComment, "chat_id": float64(200)}, decodePayload(t, last))
}

func TestCompleteTaskFailureIsLogged(t *testing.T) {
	tracker := testutil.NewTracker()
	tracker.CompleteErr = &infrastructure.APIError{Method: "tasks.task.complete", Code: "ACCESS_DENIED"}
	actions := &testutil.Actions{}
	uc := NewTaskUsecase(tracker, actions, logger.Nop())

	err := uc.Complete(context.Background(), 100, 200, 55, "fixed")
	require.Error(t, err)
	assert.Equal(t, []string{"complete:55"}, tracker.Calls, "no comment after a failed completion")

	last := actions.Last()
	assert.Equal(t, entities.ActionDoneFailed, last.Action)
	assert.Equal(t, "fixed", decodePayload(t, last)["comment"])
}

func TestCompleteTaskCommentFailure(t *testing.T) {
	tracker := testutil.NewTracker()
	tracker.CommentErr = errors.New("timeout")
	actions := &testutil.Actions{}
	uc := NewTaskUsecase(tracker, actions, logger.Nop())

	err := uc.Complete(context.Background(), 1, 1, 9, "note")
	var ce *CommentError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int64(9), ce.TaskID)

	last := actions.Last()
	assert.Equal(t, entities.ActionDone, last.Action)
	assert.Equal(t, "timeout", decodePayload(t, last)["comment_error"])
}

func TestCommentTask(t *testing.T) {
	tracker := testutil.NewTracker()
	actions := &testutil.Actions{}
	uc := NewTaskUsecase(tracker, actions, logger.Nop())

	require.NoError(t, uc.Comment(context.Background(), 1, 2, 3, "on my way"))
	assert.Equal(t, []string{"comment:3:on my way"}, tracker.Calls)
	assert.Equal(t, entities.ActionComment, actions.Last().Action)
}

func TestOpenTasksLimitsAndFilters(t *testing.T) {
	tracker := testutil.NewTracker()
	for i := 0; i < 25; i++ {
		tracker.Tasks[7] = append(tracker.Tasks[7], infrastructure.BitrixTask{ID: int64(i + 1)})
	}
	uc := NewTaskUsecase(tracker, &testutil.Actions{}, logger.Nop())

	tasks, err := uc.OpenTasks(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, tasks, 20)
	assert.Equal(t, 5, tracker.Filters[0]["<REAL_STATUS"])
}

func TestMoveDeal(t *testing.T) {
	tracker := testutil.NewTracker()
	actions := &testutil.Actions{}
	uc := NewTaskUsecase(tracker, actions, logger.Nop())

	require.NoError(t, uc.MoveDeal(context.Background(), 1, 2, 300, "C1:WON", "signed"))
	assert.Equal(t, []string{"deal:300:C1:WON", "deal_comment:300:signed"}, tracker.Calls)

	payload := decodePayload(t, actions.Last())
	assert.Equal(t, "deal", payload["entity"])
	assert.Equal(t, "C1:WON", payload["stage_id"])

	tracker.DealErr = errors.New("boom")
	assert.Error(t, uc.MoveDeal(context.Background(), 1, 2, 300, "C1:LOSE", ""))
	assert.Len(t, actions.Entries, 1)
}

func TestMoveDealChecksStage(t *testing.T) {
	tracker := testutil.NewTracker()
	tracker.Stages = map[int64][]infrastructure.DealStage{
		0: {{StatusID: "NEW"}, {StatusID: "WON"}},
		1: {{StatusID: "C1:NEW"}, {StatusID: "C1:WON"}},
	}
	actions := &testutil.Actions{}
	uc := NewTaskUsecase(tracker, actions, logger.Nop())

	err := uc.MoveDeal(context.Background(), 1, 2, 300, "C1:DONE", "")
	var stageErr *UnknownStageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, []string{"C1:NEW", "C1:WON"}, stageErr.Valid)
	assert.Empty(t, tracker.Calls)
	assert.Empty(t, actions.Entries)

	require.NoError(t, uc.MoveDeal(context.Background(), 1, 2, 300, "WON", ""))
	assert.Equal(t, []string{"deal:300:WON"}, tracker.Calls)

	// a failed lookup leaves validation to Bitrix
	tracker.StagesErr = errors.New("method not found")
	require.NoError(t, uc.MoveDeal(context.Background(), 1, 2, 301, "C7:ANY", ""))
	assert.Equal(t, "deal:301:C7:ANY", tracker.Calls[1])
}

func TestStageCategory(t *testing.T) {
	for stage, want := range map[string]int64{
		"WON":     0,
		"C1:WON":  1,
		"C12:NEW": 12,
		"CX:NEW":  0,
		"":        0,
	} {
		assert.Equal(t, want, stageCategory(stage), stage)
	}
}
