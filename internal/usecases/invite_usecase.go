package usecases

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"brigadebot/internal/interfaces"

	"github.com/skip2/go-qrcode"
)

// TeamStartPrefix is the /start payload of a team invite deep link.
const TeamStartPrefix = "team_"

// InviteUsecase produces deep links and QR codes that put a worker straight
// into a team when they open the bot.
type InviteUsecase struct {
	teams       interfaces.TeamStore
	botUsername string
}

func NewInviteUsecase(teams interfaces.TeamStore, botUsername string) *InviteUsecase {
	return &InviteUsecase{teams: teams, botUsername: botUsername}
}

func (uc *InviteUsecase) Link(teamID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", uc.botUsername, TeamStartPrefix, teamID)
}

// QRCode returns a PNG of the invite link for an existing team.
func (uc *InviteUsecase) QRCode(ctx context.Context, teamID int64, size int) ([]byte, error) {
	team, err := uc.teams.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, ErrUnknownTeam
	}
	if size < 128 || size > 1024 {
		size = 256
	}
	return qrcode.Encode(uc.Link(teamID), qrcode.Medium, size)
}

// ParseTeamStart extracts the team id from a "/start team_<id>" payload.
func ParseTeamStart(payload string) (int64, bool) {
	if !strings.HasPrefix(payload, TeamStartPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(payload, TeamStartPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
