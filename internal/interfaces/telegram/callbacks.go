package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"brigadebot/internal/usecases"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (d *Dispatcher) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	if cq.From == nil || cq.Message == nil {
		return d.answer(cq.ID, "", false)
	}
	if allowed, _ := d.limiter.Allow(cq.From.ID); !allowed {
		return d.answer(cq.ID, "Too many requests, slow down a little ⏳", false)
	}

	chatID := cq.Message.Chat.ID
	if !d.sessions.TryBegin(chatID) {
		return d.answer(cq.ID, "Please wait...", false)
	}
	defer d.sessions.Finish(chatID)

	switch {
	case cq.Data == cbTeamChange:
		return d.onTeamChange(ctx, cq)
	case strings.HasPrefix(cq.Data, cbTeamSet):
		return d.onTeamSet(ctx, cq, strings.TrimPrefix(cq.Data, cbTeamSet))
	}
	return d.answer(cq.ID, "", false)
}

func (d *Dispatcher) onTeamChange(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	teams, err := d.membership.Teams(ctx)
	if err != nil {
		d.log.Errorw("list teams", "error", err)
		return d.answer(cq.ID, "Something went wrong, try again later.", true)
	}
	kb := TeamKeyboard(teams)
	editErr := d.edit(cq.Message.Chat.ID, cq.Message.MessageID, "Choose your team:", &kb)
	return errors.Join(editErr, d.answer(cq.ID, "", false))
}

func (d *Dispatcher) onTeamSet(ctx context.Context, cq *tgbotapi.CallbackQuery, rawID string) error {
	teamID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return d.answer(cq.ID, "Unknown team", true)
	}

	team, err := d.membership.JoinTeam(ctx, cq.From.ID, fullName(cq.From), teamID)
	if errors.Is(err, usecases.ErrUnknownTeam) {
		return d.answer(cq.ID, "Unknown team", true)
	}
	if err != nil {
		d.log.Errorw("join team", "tg_user_id", cq.From.ID, "error", err)
		return d.answer(cq.ID, "Something went wrong, try again later.", true)
	}
	d.log.WithUser(cq.From.ID).Infow("team selected", "team_id", team.ID)

	// the team is saved even when the message can no longer be edited
	text := fmt.Sprintf("Team set: *%s*. Done ✅", escape(team.Name))
	editErr := d.edit(cq.Message.Chat.ID, cq.Message.MessageID, text, nil)
	return errors.Join(editErr, d.answer(cq.ID, "Saved ✅", false))
}
