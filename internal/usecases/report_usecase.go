package usecases

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"brigadebot/internal/entities"
	"brigadebot/internal/interfaces"
	"brigadebot/internal/logger"
)

// ReportUsecase builds the daily "closed tasks per brigade" report.
type ReportUsecase struct {
	users     interfaces.UserStore
	teams     interfaces.TeamStore
	tracker   interfaces.TaskTracker
	messenger interfaces.Messenger
	loc       *time.Location
	chatID    int64
	now       func() time.Time
	log       *logger.Logger

	// position of each team in the catalogue file
	order map[int64]int
}

func NewReportUsecase(users interfaces.UserStore, teams interfaces.TeamStore, tracker interfaces.TaskTracker,
	messenger interfaces.Messenger, loc *time.Location, masterChatID int64, log *logger.Logger) *ReportUsecase {
	return &ReportUsecase{
		users:     users,
		teams:     teams,
		tracker:   tracker,
		messenger: messenger,
		loc:       loc,
		chatID:    masterChatID,
		now:       time.Now,
		log:       log.Named("report"),
	}
}

// WithTeamOrder makes the report list teams in the given order. Teams missing
// from ids follow in id order.
func (uc *ReportUsecase) WithTeamOrder(ids []int64) *ReportUsecase {
	uc.order = make(map[int64]int, len(ids))
	for i, id := range ids {
		if _, dup := uc.order[id]; !dup {
			uc.order[id] = i
		}
	}
	return uc
}

func (uc *ReportUsecase) rank(teamID int64) int {
	if pos, ok := uc.order[teamID]; ok {
		return pos
	}
	return len(uc.order)
}

// Build renders the report for the local day containing now.
func (uc *ReportUsecase) Build(ctx context.Context, now time.Time) (string, error) {
	now = now.In(uc.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, uc.loc)
	dayEnd := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, uc.loc)

	teams, err := uc.teams.List(ctx)
	if err != nil {
		return "", err
	}
	slices.SortStableFunc(teams, func(a, b entities.Team) int {
		return cmp.Compare(uc.rank(a.ID), uc.rank(b.ID))
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Report for %s\n\n", now.Format("02.01.2006"))

	totalClosed := 0
	for _, team := range teams {
		members, err := uc.users.ListByTeam(ctx, team.ID)
		if err != nil {
			return "", err
		}
		if len(members) == 0 {
			continue
		}

		fmt.Fprintf(&sb, "Team “%s”:\n", team.Name)
		for _, u := range members {
			name := u.DisplayName()
			if u.BitrixUserID == nil || *u.BitrixUserID == 0 {
				fmt.Fprintf(&sb, "• %s — no Bitrix ID\n", name)
				continue
			}

			closed, err := uc.tracker.ListTasks(ctx, map[string]any{
				"RESPONSIBLE_ID": *u.BitrixUserID,
				">=CLOSED_DATE":  dayStart.Format(time.RFC3339),
				"<=CLOSED_DATE":  dayEnd.Format(time.RFC3339),
			}, []string{"ID", "TITLE", "CLOSED_DATE"})
			if err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				uc.log.Warnw("list closed tasks", "bitrix_user_id", *u.BitrixUserID, "error", err)
				fmt.Fprintf(&sb, "• %s — error: %v\n", name, err)
				continue
			}

			totalClosed += len(closed)
			ids := "—"
			if len(closed) > 0 {
				parts := make([]string, len(closed))
				for i, t := range closed {
					parts[i] = strconv.FormatInt(t.ID, 10)
				}
				ids = strings.Join(parts, ", ")
			}
			fmt.Fprintf(&sb, "• %s — %d task(s): %s\n", name, len(closed), ids)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Total closed today: %d", totalClosed)
	return sb.String(), nil
}

// SendTo builds today's report and sends it to chatID.
func (uc *ReportUsecase) SendTo(ctx context.Context, chatID int64) error {
	text, err := uc.Build(ctx, uc.now())
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	if err := uc.messenger.SendText(chatID, text); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}

// SendDaily sends today's report to the master chat.
func (uc *ReportUsecase) SendDaily(ctx context.Context) error {
	return uc.SendTo(ctx, uc.chatID)
}
