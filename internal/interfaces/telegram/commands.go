package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"brigadebot/internal/entities"
	"brigadebot/internal/usecases"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type commandHandler func(d *Dispatcher, ctx context.Context, m *tgbotapi.Message) error

var commands map[string]commandHandler

func init() {
	commands = map[string]commandHandler{
		"start":   (*Dispatcher).cmdStart,
		"help":    (*Dispatcher).cmdHelp,
		"team":    (*Dispatcher).cmdTeam,
		"whoami":  (*Dispatcher).cmdWhoAmI,
		"done":    (*Dispatcher).cmdDone,
		"comment": (*Dispatcher).cmdComment,
		"tasks":   (*Dispatcher).cmdTasks,
		"link":    (*Dispatcher).cmdLink,
		"chatid":  (*Dispatcher).cmdChatID,
		"report":  (*Dispatcher).cmdReport,
		"role":    (*Dispatcher).cmdRole,
		"deal":    (*Dispatcher).cmdDeal,
	}
}

const helpText = `Commands:
/start - pick your team
/team set <id> - change team by id
/whoami - show your team, Bitrix id and role
/done <task_id> [comment] - complete a Bitrix task
/comment <task_id> <text> - comment on a task
/tasks - your open tasks
/link <email|bitrix_id> - link your Bitrix account
/chatid - show this chat id
/report - today's report (foreman, admin)
/deal <deal_id> <stage_id> [comment] - move a deal (foreman, admin)
/role <tg_user_id> <worker|foreman|admin> - change a role (admin)`

func (d *Dispatcher) cmdStart(ctx context.Context, m *tgbotapi.Message) error {
	if teamID, ok := usecases.ParseTeamStart(m.CommandArguments()); ok {
		return d.joinByText(ctx, m, teamID)
	}

	p, err := d.membership.Profile(ctx, m.From.ID)
	if err != nil {
		return d.fail(m.Chat.ID, "load profile", err)
	}
	if p.Team != nil {
		kb := ChangeTeamKeyboard()
		text := fmt.Sprintf("You are in team *%s*.\nReady to work ✅", escape(p.Team.Name))
		return d.replyMarkdown(m.Chat.ID, text, &kb)
	}
	return d.sendPicker(ctx, m.Chat.ID)
}

func (d *Dispatcher) cmdHelp(_ context.Context, m *tgbotapi.Message) error {
	return d.reply(m.Chat.ID, helpText)
}

func (d *Dispatcher) cmdTeam(ctx context.Context, m *tgbotapi.Message) error {
	args := strings.Fields(m.CommandArguments())
	if len(args) == 0 {
		return d.sendPicker(ctx, m.Chat.ID)
	}
	if len(args) != 2 || args[0] != "set" {
		return d.reply(m.Chat.ID, "Usage: /team set <team_id>")
	}
	teamID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return d.reply(m.Chat.ID, "Team id must be a number.")
	}
	return d.joinByText(ctx, m, teamID)
}

func (d *Dispatcher) joinByText(ctx context.Context, m *tgbotapi.Message, teamID int64) error {
	team, err := d.membership.JoinTeam(ctx, m.From.ID, fullName(m.From), teamID)
	if errors.Is(err, usecases.ErrUnknownTeam) {
		return d.reply(m.Chat.ID, fmt.Sprintf("Team %d does not exist.", teamID))
	}
	if err != nil {
		return d.fail(m.Chat.ID, "join team", err)
	}
	d.log.WithUser(m.From.ID).Infow("team selected", "team_id", team.ID)
	return d.replyMarkdown(m.Chat.ID, fmt.Sprintf("Team set: *%s*. Done ✅", escape(team.Name)), nil)
}

func (d *Dispatcher) sendPicker(ctx context.Context, chatID int64) error {
	teams, err := d.membership.Teams(ctx)
	if err != nil {
		return d.fail(chatID, "list teams", err)
	}
	if len(teams) == 0 {
		return d.reply(chatID, "No teams configured yet.")
	}
	kb := TeamKeyboard(teams)
	return d.replyMarkdown(chatID, "Choose your team:", &kb)
}

func (d *Dispatcher) cmdWhoAmI(ctx context.Context, m *tgbotapi.Message) error {
	p, err := d.membership.Profile(ctx, m.From.ID)
	if err != nil {
		return d.fail(m.Chat.ID, "load profile", err)
	}
	if p.Team == nil {
		return d.reply(m.Chat.ID, "Team not selected yet.")
	}
	bitrix := "not linked"
	if p.User != nil && p.User.BitrixUserID != nil {
		bitrix = strconv.FormatInt(*p.User.BitrixUserID, 10)
	}
	return d.reply(m.Chat.ID, fmt.Sprintf("Your team: %s (id=%d)\nBitrix ID: %s\nRole: %s",
		p.Team.Name, p.Team.ID, bitrix, p.Role))
}

func (d *Dispatcher) cmdDone(ctx context.Context, m *tgbotapi.Message) error {
	taskID, rest, ok := splitID(m.CommandArguments())
	if !ok {
		return d.replyMarkdown(m.Chat.ID, "Example: `/done 1234 finished the wiring`", nil)
	}

	err := d.tasks.Complete(ctx, m.From.ID, m.Chat.ID, taskID, rest)
	var commentErr *usecases.CommentError
	switch {
	case errors.As(err, &commentErr):
		return d.reply(m.Chat.ID, fmt.Sprintf("Task #%d completed ✅, but the comment was not saved: %v", taskID, commentErr.Err))
	case err != nil:
		return d.reply(m.Chat.ID, fmt.Sprintf("Could not complete #%d: %v", taskID, err))
	}

	text := fmt.Sprintf("Task #%d completed ✅", taskID)
	if url := d.tasks.TaskURL(taskID); url != "" {
		text += "\n" + url
	}
	return d.reply(m.Chat.ID, text)
}

func (d *Dispatcher) cmdComment(ctx context.Context, m *tgbotapi.Message) error {
	taskID, text, ok := splitID(m.CommandArguments())
	if !ok || text == "" {
		return d.replyMarkdown(m.Chat.ID, "Example: `/comment 1234 waiting for materials`", nil)
	}
	if err := d.tasks.Comment(ctx, m.From.ID, m.Chat.ID, taskID, text); err != nil {
		return d.reply(m.Chat.ID, fmt.Sprintf("Could not comment on #%d: %v", taskID, err))
	}
	return d.reply(m.Chat.ID, fmt.Sprintf("Comment added to #%d 💬", taskID))
}

func (d *Dispatcher) cmdTasks(ctx context.Context, m *tgbotapi.Message) error {
	p, err := d.membership.Profile(ctx, m.From.ID)
	if err != nil {
		return d.fail(m.Chat.ID, "load profile", err)
	}
	if p.User == nil || p.User.BitrixUserID == nil {
		return d.reply(m.Chat.ID, "Link your Bitrix account first: /link <email>")
	}

	tasks, err := d.tasks.OpenTasks(ctx, *p.User.BitrixUserID)
	if err != nil {
		return d.reply(m.Chat.ID, fmt.Sprintf("Could not load tasks: %v", err))
	}
	if len(tasks) == 0 {
		return d.reply(m.Chat.ID, "No open tasks 🎉")
	}

	var sb strings.Builder
	sb.WriteString("Your open tasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&sb, "#%d %s", t.ID, t.Title)
		if t.Deadline != "" {
			fmt.Fprintf(&sb, " (until %s)", t.Deadline)
		}
		sb.WriteByte('\n')
	}
	return d.reply(m.Chat.ID, strings.TrimRight(sb.String(), "\n"))
}

func (d *Dispatcher) cmdLink(ctx context.Context, m *tgbotapi.Message) error {
	arg := strings.TrimSpace(m.CommandArguments())
	if arg == "" {
		return d.reply(m.Chat.ID, "Usage: /link <email|bitrix_id>")
	}
	id, err := d.membership.LinkBitrix(ctx, m.From.ID, arg)
	if errors.Is(err, usecases.ErrBitrixUserNotFound) {
		return d.reply(m.Chat.ID, "No Bitrix user with this e-mail.")
	}
	if err != nil {
		return d.reply(m.Chat.ID, fmt.Sprintf("Could not link: %v", err))
	}
	d.log.WithUser(m.From.ID).Infow("bitrix linked", "bitrix_user_id", id)
	return d.reply(m.Chat.ID, fmt.Sprintf("Bitrix account linked: ID %d ✅", id))
}

func (d *Dispatcher) cmdChatID(_ context.Context, m *tgbotapi.Message) error {
	return d.reply(m.Chat.ID, fmt.Sprintf("Chat ID: %d", m.Chat.ID))
}

func (d *Dispatcher) cmdReport(ctx context.Context, m *tgbotapi.Message) error {
	ok, err := d.canManage(ctx, m)
	if err != nil || !ok {
		return err
	}
	if err := d.reports.SendTo(ctx, m.Chat.ID); err != nil {
		return d.reply(m.Chat.ID, fmt.Sprintf("Report failed: %v", err))
	}
	return nil
}

func (d *Dispatcher) cmdRole(ctx context.Context, m *tgbotapi.Message) error {
	args := strings.Fields(m.CommandArguments())
	if len(args) != 2 {
		return d.reply(m.Chat.ID, "Usage: /role <tg_user_id> <worker|foreman|admin>")
	}
	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return d.reply(m.Chat.ID, "Telegram user id must be a number.")
	}

	err = d.membership.SetRole(ctx, m.From.ID, target, args[1])
	switch {
	case errors.Is(err, usecases.ErrForbidden):
		return d.reply(m.Chat.ID, "Only admins can change roles.")
	case errors.Is(err, usecases.ErrInvalidRole):
		return d.reply(m.Chat.ID, "Role must be worker, foreman or admin.")
	case err != nil:
		return d.reply(m.Chat.ID, fmt.Sprintf("Could not change role: %v", err))
	}
	d.log.Audit("role changed", "actor", m.From.ID, "target", target, "role", args[1])
	return d.reply(m.Chat.ID, fmt.Sprintf("User %d is now %s.", target, args[1]))
}

func (d *Dispatcher) cmdDeal(ctx context.Context, m *tgbotapi.Message) error {
	ok, err := d.canManage(ctx, m)
	if err != nil || !ok {
		return err
	}
	dealID, rest, ok := splitID(m.CommandArguments())
	stage, comment := cutWord(rest)
	if !ok || stage == "" {
		return d.replyMarkdown(m.Chat.ID, "Example: `/deal 300 C1:WON installed`", nil)
	}

	err = d.tasks.MoveDeal(ctx, m.From.ID, m.Chat.ID, dealID, stage, comment)
	var commentErr *usecases.CommentError
	var stageErr *usecases.UnknownStageError
	switch {
	case errors.As(err, &stageErr):
		return d.reply(m.Chat.ID, fmt.Sprintf("Unknown stage %s. Available: %s", stage, strings.Join(stageErr.Valid, ", ")))
	case errors.As(err, &commentErr):
		return d.reply(m.Chat.ID, fmt.Sprintf("Deal #%d moved to %s, but the comment was not saved: %v", dealID, stage, commentErr.Err))
	case err != nil:
		return d.reply(m.Chat.ID, fmt.Sprintf("Could not move deal #%d: %v", dealID, err))
	}
	return d.reply(m.Chat.ID, fmt.Sprintf("Deal #%d moved to %s ✅", dealID, stage))
}

// canManage replies with a refusal for workers.
func (d *Dispatcher) canManage(ctx context.Context, m *tgbotapi.Message) (bool, error) {
	p, err := d.membership.Profile(ctx, m.From.ID)
	if err != nil {
		return false, d.fail(m.Chat.ID, "load profile", err)
	}
	if !(entities.User{Role: p.Role}).CanManage() {
		return false, d.reply(m.Chat.ID, "This command is for foremen and admins.")
	}
	return true, nil
}

// fail logs an internal error and tells the user something went wrong.
func (d *Dispatcher) fail(chatID int64, op string, err error) error {
	d.log.Errorw(op, "chat_id", chatID, "error", err)
	return d.reply(chatID, "Something went wrong, try again later.")
}

// splitID parses "<id> rest of the text". Any whitespace, newlines included,
// separates the id from the rest.
func splitID(args string) (int64, string, bool) {
	head, rest := cutWord(args)
	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, rest, true
}

// cutWord returns the first whitespace-separated word and the trimmed rest.
func cutWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
