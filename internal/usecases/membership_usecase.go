package usecases

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"brigadebot/internal/entities"
	"brigadebot/internal/interfaces"
	"brigadebot/internal/repository"
)

// Profile is what the bot knows about a Telegram user. User and Team are nil
// for someone who never picked a team.
type Profile struct {
	User *entities.User
	Team *entities.Team
	Role string
}

// MembershipUsecase covers team selection, Bitrix linking and roles.
type MembershipUsecase struct {
	users   interfaces.UserStore
	teams   interfaces.TeamStore
	tracker interfaces.TaskTracker
	admins  map[int64]bool
}

func NewMembershipUsecase(users interfaces.UserStore, teams interfaces.TeamStore, tracker interfaces.TaskTracker, adminIDs []int64) *MembershipUsecase {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &MembershipUsecase{users: users, teams: teams, tracker: tracker, admins: admins}
}

func (uc *MembershipUsecase) Teams(ctx context.Context) ([]entities.Team, error) {
	return uc.teams.List(ctx)
}

func (uc *MembershipUsecase) Profile(ctx context.Context, tgUserID int64) (*Profile, error) {
	u, err := uc.users.GetByTelegramID(ctx, tgUserID)
	if err != nil {
		return nil, err
	}
	p := &Profile{User: u, Role: uc.roleOf(tgUserID, u)}
	if u != nil && u.TeamID != nil {
		p.Team, err = uc.teams.Get(ctx, *u.TeamID)
		if err != nil {
			return nil, err
		}
		if p.Team == nil {
			// team was removed from the catalogue; keep the id visible
			p.Team = &entities.Team{ID: *u.TeamID, Name: "?"}
		}
	}
	return p, nil
}

// JoinTeam registers the user if needed and assigns the team.
func (uc *MembershipUsecase) JoinTeam(ctx context.Context, tgUserID int64, fullName string, teamID int64) (*entities.Team, error) {
	team, err := uc.teams.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, ErrUnknownTeam
	}
	if _, err := uc.users.UpsertTeam(ctx, tgUserID, strings.TrimSpace(fullName), teamID); err != nil {
		return nil, err
	}
	return team, nil
}

// LinkBitrix accepts either a numeric Bitrix user id or an e-mail that is
// resolved through user.search. It returns the stored Bitrix id.
func (uc *MembershipUsecase) LinkBitrix(ctx context.Context, tgUserID int64, arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	var bitrixID int64
	switch {
	case strings.Contains(arg, "@"):
		found, err := uc.tracker.SearchUserByEmail(ctx, arg)
		if err != nil {
			return 0, err
		}
		if len(found) == 0 {
			return 0, ErrBitrixUserNotFound
		}
		bitrixID = found[0].ID
	default:
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("expected an e-mail or a numeric Bitrix id, got %q", arg)
		}
		bitrixID = id
	}

	if err := uc.users.LinkBitrix(ctx, tgUserID, bitrixID); err != nil {
		return 0, err
	}
	return bitrixID, nil
}

// SetRole lets an admin change another user's role.
func (uc *MembershipUsecase) SetRole(ctx context.Context, actorID, targetID int64, role string) error {
	if !entities.ValidRole(role) {
		return ErrInvalidRole
	}
	actor, err := uc.users.GetByTelegramID(ctx, actorID)
	if err != nil {
		return err
	}
	if uc.roleOf(actorID, actor) != entities.RoleAdmin {
		return ErrForbidden
	}
	return uc.AssignRole(ctx, targetID, role)
}

// AssignRole changes a role without an actor check. Used by the admin API.
func (uc *MembershipUsecase) AssignRole(ctx context.Context, targetID int64, role string) error {
	if !entities.ValidRole(role) {
		return ErrInvalidRole
	}
	err := uc.users.SetRole(ctx, targetID, role)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("user %d: %w", targetID, err)
	}
	return err
}

func (uc *MembershipUsecase) Users(ctx context.Context) ([]entities.User, error) {
	return uc.users.ListAll(ctx)
}

func (uc *MembershipUsecase) CreateTeam(ctx context.Context, team entities.Team) error {
	return uc.teams.Create(ctx, team)
}

// roleOf applies the ADMIN_TG_IDS override on top of the stored role.
func (uc *MembershipUsecase) roleOf(tgUserID int64, u *entities.User) string {
	if uc.admins[tgUserID] {
		return entities.RoleAdmin
	}
	if u == nil || u.Role == "" {
		return entities.RoleWorker
	}
	return u.Role
}
