package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"brigadebot/internal/entities"
	"brigadebot/internal/infrastructure"
	"brigadebot/internal/logger"
	"brigadebot/internal/testutil"
	"brigadebot/internal/usecases"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	editErr  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, c)
	if _, ok := c.(tgbotapi.EditMessageTextConfig); ok && b.editErr != nil {
		return tgbotapi.Message{}, b.editErr
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (b *fakeBot) lastText() string {
	texts := b.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (b *fakeBot) lastAnswer() tgbotapi.CallbackConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.requests) - 1; i >= 0; i-- {
		if cb, ok := b.requests[i].(tgbotapi.CallbackConfig); ok {
			return cb
		}
	}
	return tgbotapi.CallbackConfig{}
}

type fixture struct {
	d         *Dispatcher
	bot       *fakeBot
	users     *testutil.Users
	tracker   *testutil.Tracker
	actions   *testutil.Actions
	messenger *testutil.Messenger
}

const adminID = 900

func newFixture(t *testing.T, users ...entities.User) *fixture {
	t.Helper()
	f := &fixture{
		bot:       &fakeBot{},
		users:     testutil.NewUsers(users...),
		tracker:   testutil.NewTracker(),
		actions:   &testutil.Actions{},
		messenger: testutil.NewMessenger(),
	}
	teams := testutil.NewTeams(
		entities.Team{ID: 1, Name: "Brigade 1"},
		entities.Team{ID: 2, Name: "Brigade 2"},
		entities.Team{ID: 3, Name: "Brigade 3"},
	)
	log := logger.Nop()
	f.d = NewDispatcher(f.bot,
		usecases.NewMembershipUsecase(f.users, teams, f.tracker, []int64{adminID}),
		usecases.NewTaskUsecase(f.tracker, f.actions, log),
		usecases.NewReportUsecase(f.users, teams, f.tracker, f.messenger, time.UTC, 1, log),
		infrastructure.NewMessageRateLimiter(100, 100),
		infrastructure.NewSessionManager(0),
		log,
	)
	return f
}

func command(from, chat int64, text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from, FirstName: "Ivan", LastName: "Franko"},
		Chat:      &tgbotapi.Chat{ID: chat},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func callback(from, chat int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: from, FirstName: "Ivan"},
		Message: &tgbotapi.Message{MessageID: 42, Chat: &tgbotapi.Chat{ID: chat}},
		Data:    data,
	}}
}

func (f *fixture) handle(t *testing.T, u tgbotapi.Update) {
	t.Helper()
	require.NoError(t, f.d.HandleUpdate(context.Background(), u))
}

func TestStartShowsPickerForNewUser(t *testing.T) {
	f := newFixture(t)
	f.handle(t, command(10, 10, "/start"))

	require.Len(t, f.bot.sent, 1)
	msg := f.bot.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, "Choose your team:", msg.Text)
	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "team:set:1", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "team:set:3", *kb.InlineKeyboard[1][0].CallbackData)
}

func TestStartWithTeamOffersChange(t *testing.T) {
	f := newFixture(t, entities.User{TgUserID: 10, TeamID: testutil.Ptr(int64(2))})
	f.handle(t, command(10, 10, "/start"))

	msg := f.bot.sent[0].(tgbotapi.MessageConfig)
	assert.Contains(t, msg.Text, "Brigade 2")
	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, cbTeamChange, *kb.InlineKeyboard[0][0].CallbackData)
}

func TestStartDeepLinkJoinsTeam(t *testing.T) {
	f := newFixture(t)
	f.handle(t, command(10, 10, "/start team_3"))

	u, _ := f.users.GetByTelegramID(context.Background(), 10)
	require.NotNil(t, u)
	assert.Equal(t, int64(3), *u.TeamID)
	assert.Contains(t, f.bot.lastText(), "Brigade 3")
}

func TestTeamSetCommand(t *testing.T) {
	f := newFixture(t)

	f.handle(t, command(10, 10, "/team set 9"))
	assert.Equal(t, "Team 9 does not exist.", f.bot.lastText())

	f.handle(t, command(10, 10, "/team set x"))
	assert.Equal(t, "Team id must be a number.", f.bot.lastText())

	f.handle(t, command(10, 10, "/team set 1"))
	u, _ := f.users.GetByTelegramID(context.Background(), 10)
	assert.Equal(t, int64(1), *u.TeamID)
	assert.Equal(t, "Ivan Franko", *u.FullName)
}

func TestTeamSetCallback(t *testing.T) {
	f := newFixture(t)
	f.handle(t, callback(10, 20, "team:set:2"))

	u, _ := f.users.GetByTelegramID(context.Background(), 10)
	require.NotNil(t, u)
	assert.Equal(t, int64(2), *u.TeamID)

	edit := f.bot.sent[0].(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, int64(20), edit.ChatID)
	assert.Equal(t, 42, edit.MessageID)
	assert.Nil(t, edit.ReplyMarkup)
	assert.Equal(t, "Saved ✅", f.bot.lastAnswer().Text)
}

func TestTeamSetCallbackUnknownTeam(t *testing.T) {
	f := newFixture(t)
	f.handle(t, callback(10, 20, "team:set:77"))

	assert.Empty(t, f.bot.sent)
	cb := f.bot.lastAnswer()
	assert.True(t, cb.ShowAlert)
	assert.Equal(t, "Unknown team", cb.Text)
}

func TestTeamChangeIgnoresNotModified(t *testing.T) {
	f := newFixture(t)
	f.bot.editErr = errors.New("Bad Request: message is not modified")

	f.handle(t, callback(10, 20, cbTeamChange))
	assert.Equal(t, "Choose your team:", f.bot.lastText())
	assert.Equal(t, "cb1", f.bot.lastAnswer().CallbackQueryID)
}

func TestTeamSetCallbackAnsweredWhenEditFails(t *testing.T) {
	f := newFixture(t)
	f.bot.editErr = errors.New("Bad Request: message can't be edited")

	err := f.d.HandleUpdate(context.Background(), callback(10, 20, "team:set:1"))
	assert.ErrorContains(t, err, "can't be edited")

	u, _ := f.users.GetByTelegramID(context.Background(), 10)
	require.NotNil(t, u)
	assert.Equal(t, int64(1), *u.TeamID)
	assert.Equal(t, "Saved ✅", f.bot.lastAnswer().Text)
}

func TestTeamChangeAnsweredWhenEditFails(t *testing.T) {
	f := newFixture(t)
	f.bot.editErr = errors.New("Bad Request: message to edit not found")

	err := f.d.HandleUpdate(context.Background(), callback(10, 20, cbTeamChange))
	assert.Error(t, err)
	assert.Equal(t, "cb1", f.bot.lastAnswer().CallbackQueryID)
}

func TestCallbackDebounce(t *testing.T) {
	f := newFixture(t)
	f.d.sessions = infrastructure.NewSessionManager(time.Minute)

	f.handle(t, callback(10, 20, "team:set:1"))
	f.handle(t, callback(10, 20, "team:set:2"))

	u, _ := f.users.GetByTelegramID(context.Background(), 10)
	assert.Equal(t, int64(1), *u.TeamID)
	assert.Equal(t, "Please wait...", f.bot.lastAnswer().Text)
}

func TestWhoAmI(t *testing.T) {
	f := newFixture(t, entities.User{TgUserID: 11, TeamID: testutil.Ptr(int64(1)), BitrixUserID: testutil.Ptr(int64(501)), Role: entities.RoleForeman})

	f.handle(t, command(10, 10, "/whoami"))
	assert.Equal(t, "Team not selected yet.", f.bot.lastText())

	f.handle(t, command(11, 11, "/whoami"))
	assert.Equal(t, "Your team: Brigade 1 (id=1)\nBitrix ID: 501\nRole: foreman", f.bot.lastText())
}

func TestDone(t *testing.T) {
	f := newFixture(t)

	f.handle(t, command(10, 30, "/done"))
	assert.Contains(t, f.bot.lastText(), "/done 1234")
	assert.Empty(t, f.tracker.Calls)

	f.handle(t, command(10, 30, "/done 55 wired"))
	assert.Equal(t, "Task #55 completed ✅\nhttps://portal.example/task/55", f.bot.lastText())
	assert.Equal(t, []string{"complete:55", "comment:55:wired"}, f.tracker.Calls)
	assert.Equal(t, entities.ActionDone, f.actions.Last().Action)

	f.tracker.CompleteErr = errors.New("access denied")
	f.handle(t, command(10, 30, "/done 56"))
	assert.Equal(t, "Could not complete #56: access denied", f.bot.lastText())
	assert.Equal(t, entities.ActionDoneFailed, f.actions.Last().Action)
}

func TestDoneCommentOnNextLine(t *testing.T) {
	f := newFixture(t)

	f.handle(t, command(10, 30, "/done 1234\nfixed the cable\nand the socket"))
	assert.Equal(t, "Task #1234 completed ✅\nhttps://portal.example/task/1234", f.bot.lastText())
	assert.Equal(t, []string{"complete:1234", "comment:1234:fixed the cable\nand the socket"}, f.tracker.Calls)

	f.handle(t, command(10, 30, "/comment 1234\twaiting for materials"))
	assert.Equal(t, "Comment added to #1234 💬", f.bot.lastText())
	assert.Equal(t, entities.ActionComment, f.actions.Last().Action)
}

func TestDoneCommentFailure(t *testing.T) {
	f := newFixture(t)
	f.tracker.CommentErr = errors.New("timeout")

	f.handle(t, command(10, 30, "/done 55"))
	assert.Equal(t, "Task #55 completed ✅, but the comment was not saved: timeout", f.bot.lastText())
}

func TestTasksRequiresLink(t *testing.T) {
	f := newFixture(t, entities.User{TgUserID: 12, BitrixUserID: testutil.Ptr(int64(77))})
	f.tracker.Tasks[77] = []infrastructure.BitrixTask{{ID: 5, Title: "Mount panel", Deadline: "2025-05-01"}, {ID: 6, Title: "Cable"}}

	f.handle(t, command(10, 10, "/tasks"))
	assert.Contains(t, f.bot.lastText(), "/link")

	f.handle(t, command(12, 12, "/tasks"))
	assert.Equal(t, "Your open tasks:\n#5 Mount panel (until 2025-05-01)\n#6 Cable", f.bot.lastText())
}

func TestLink(t *testing.T) {
	f := newFixture(t)
	f.tracker.Users["ivan@example.com"] = []infrastructure.BitrixUser{{ID: 321}}

	f.handle(t, command(10, 10, "/link ivan@example.com"))
	assert.Equal(t, "Bitrix account linked: ID 321 ✅", f.bot.lastText())

	f.handle(t, command(10, 10, "/link nobody@example.com"))
	assert.Equal(t, "No Bitrix user with this e-mail.", f.bot.lastText())

	u, _ := f.users.GetByTelegramID(context.Background(), 10)
	assert.Equal(t, int64(321), *u.BitrixUserID)
}

func TestChatID(t *testing.T) {
	f := newFixture(t)
	f.handle(t, command(10, -100500, "/chatid"))
	assert.Equal(t, "Chat ID: -100500", f.bot.lastText())
}

func TestReportRequiresManager(t *testing.T) {
	f := newFixture(t, entities.User{TgUserID: 10, Role: entities.RoleWorker})

	f.handle(t, command(10, 40, "/report"))
	assert.Equal(t, "This command is for foremen and admins.", f.bot.lastText())
	assert.Empty(t, f.messenger.Sent)

	f.handle(t, command(adminID, 40, "/report"))
	require.Len(t, f.messenger.Sent[40], 1)
	assert.Contains(t, f.messenger.Sent[40][0], "Total closed today: 0")
}

func TestRole(t *testing.T) {
	f := newFixture(t, entities.User{TgUserID: 10})

	f.handle(t, command(10, 10, "/role 10 admin"))
	assert.Equal(t, "Only admins can change roles.", f.bot.lastText())

	f.handle(t, command(adminID, adminID, "/role 10 boss"))
	assert.Equal(t, "Role must be worker, foreman or admin.", f.bot.lastText())

	f.handle(t, command(adminID, adminID, "/role 10 foreman"))
	assert.Equal(t, "User 10 is now foreman.", f.bot.lastText())
	u, _ := f.users.GetByTelegramID(context.Background(), 10)
	assert.Equal(t, entities.RoleForeman, u.Role)
}

func TestDeal(t *testing.T) {
	f := newFixture(t, entities.User{TgUserID: 10, Role: entities.RoleForeman})

	f.handle(t, command(10, 10, "/deal 300"))
	assert.Contains(t, f.bot.lastText(), "/deal 300 C1:WON")

	f.handle(t, command(10, 10, "/deal 300\nC1:WON\ninstalled on site"))
	assert.Equal(t, "Deal #300 moved to C1:WON ✅", f.bot.lastText())
	assert.Equal(t, []string{"deal:300:C1:WON", "deal_comment:300:installed on site"}, f.tracker.Calls)
	assert.Equal(t, entities.ActionDealMove, f.actions.Last().Action)
}

func TestDealUnknownStage(t *testing.T) {
	f := newFixture(t, entities.User{TgUserID: 10, Role: entities.RoleForeman})
	f.tracker.Stages = map[int64][]infrastructure.DealStage{2: {{StatusID: "C2:NEW"}, {StatusID: "C2:WON"}}}

	f.handle(t, command(10, 10, "/deal 300 C2:WIN"))
	assert.Equal(t, "Unknown stage C2:WIN. Available: C2:NEW, C2:WON", f.bot.lastText())
	assert.Empty(t, f.tracker.Calls)
}

func TestRateLimitWarnsOnce(t *testing.T) {
	f := newFixture(t)
	f.d.limiter = infrastructure.NewMessageRateLimiter(0.001, 1)

	for i := 0; i < 4; i++ {
		f.handle(t, command(10, 10, "/chatid"))
	}
	assert.Equal(t, []string{"Chat ID: 10", "Too many requests, slow down a little ⏳"}, f.bot.texts())
}

func TestNonCommandMessagesAreIgnored(t *testing.T) {
	f := newFixture(t)
	f.handle(t, tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 10},
		Chat: &tgbotapi.Chat{ID: 10},
		Text: "hello",
	}})
	f.handle(t, command(10, 10, "/unknown"))
	assert.Empty(t, f.bot.sent)
}

func TestDispatchWaits(t *testing.T) {
	f := newFixture(t)
	f.d.Dispatch(command(10, 10, "/chatid"))
	f.d.Wait()
	assert.Equal(t, "Chat ID: 10", f.bot.lastText())
}
