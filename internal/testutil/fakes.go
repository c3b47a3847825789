// Package testutil holds in-memory stand-ins for the Postgres stores, the
// Bitrix client and the Telegram messenger.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"brigadebot/internal/entities"
	"brigadebot/internal/infrastructure"
	"brigadebot/internal/repository"
)

type Users struct {
	mu   sync.Mutex
	byTG map[int64]*entities.User
	next int64
}

func NewUsers(users ...entities.User) *Users {
	s := &Users{byTG: map[int64]*entities.User{}}
	for _, u := range users {
		u := u
		s.next++
		u.ID = s.next
		if u.Role == "" {
			u.Role = entities.RoleWorker
		}
		s.byTG[u.TgUserID] = &u
	}
	return s
}

func (s *Users) GetByTelegramID(_ context.Context, id int64) (*entities.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byTG[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *Users) getOrCreate(id int64) *entities.User {
	u, ok := s.byTG[id]
	if !ok {
		s.next++
		u = &entities.User{ID: s.next, TgUserID: id, Role: entities.RoleWorker, CreatedAt: time.Now()}
		s.byTG[id] = u
	}
	return u
}

func (s *Users) UpsertTeam(_ context.Context, id int64, fullName string, teamID int64) (*entities.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.getOrCreate(id)
	u.TeamID = &teamID
	if fullName != "" {
		u.FullName = &fullName
	}
	cp := *u
	return &cp, nil
}

func (s *Users) LinkBitrix(_ context.Context, id, bitrixID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(id).BitrixUserID = &bitrixID
	return nil
}

func (s *Users) SetRole(_ context.Context, id int64, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byTG[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	return nil
}

func (s *Users) ListByTeam(_ context.Context, teamID int64) ([]entities.User, error) {
	all := s.sorted()
	out := []entities.User{}
	for _, u := range all {
		if u.TeamID != nil && *u.TeamID == teamID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Users) ListAll(context.Context) ([]entities.User, error) {
	return s.sorted(), nil
}

func (s *Users) sorted() []entities.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.User, 0, len(s.byTG))
	for _, u := range s.byTG {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type Teams struct {
	mu    sync.Mutex
	teams map[int64]entities.Team
}

func NewTeams(teams ...entities.Team) *Teams {
	s := &Teams{teams: map[int64]entities.Team{}}
	for _, t := range teams {
		s.teams[t.ID] = t
	}
	return s
}

func (s *Teams) Create(_ context.Context, t entities.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID <= 0 {
		return repository.ErrTeamIDRequired
	}
	if _, ok := s.teams[t.ID]; ok {
		return repository.ErrDuplicateTeam
	}
	s.teams[t.ID] = t
	return nil
}

func (s *Teams) Get(_ context.Context, id int64) (*entities.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Teams) List(context.Context) ([]entities.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.Team, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type Actions struct {
	mu      sync.Mutex
	Entries []entities.TaskAction
}

func (s *Actions) Append(_ context.Context, a *entities.TaskAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = int64(len(s.Entries) + 1)
	a.CreatedAt = time.Now()
	s.Entries = append(s.Entries, *a)
	return nil
}

func (s *Actions) ListRecent(_ context.Context, limit int) ([]entities.TaskAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []entities.TaskAction{}
	for i := len(s.Entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.Entries[i])
	}
	return out, nil
}

func (s *Actions) ListByTask(_ context.Context, taskID int64, limit int) ([]entities.TaskAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []entities.TaskAction{}
	for i := len(s.Entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.Entries[i].BitrixTaskID == taskID {
			out = append(out, s.Entries[i])
		}
	}
	return out, nil
}

func (s *Actions) Last() entities.TaskAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Entries[len(s.Entries)-1]
}

// Tracker is a scriptable Bitrix fake. Calls records "method:arg" strings.
type Tracker struct {
	mu          sync.Mutex
	Calls       []string
	Tasks       map[int64][]infrastructure.BitrixTask // by responsible id
	Users       map[string][]infrastructure.BitrixUser
	Filters     []map[string]any
	CompleteErr error
	CommentErr  error
	ListErr     map[int64]error
	DealErr     error
	Stages      map[int64][]infrastructure.DealStage // by pipeline id
	StagesErr   error
	DealPage    infrastructure.DealPage
	DealFilters []map[string]any
}

func NewTracker() *Tracker {
	return &Tracker{
		Tasks:   map[int64][]infrastructure.BitrixTask{},
		Users:   map[string][]infrastructure.BitrixUser{},
		ListErr: map[int64]error{},
	}
}

func (t *Tracker) called(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, s)
}

func (t *Tracker) ListTasks(_ context.Context, filter map[string]any, _ []string) ([]infrastructure.BitrixTask, error) {
	t.called("list")
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Filters = append(t.Filters, filter)
	id, _ := filter["RESPONSIBLE_ID"].(int64)
	if err := t.ListErr[id]; err != nil {
		return nil, err
	}
	return t.Tasks[id], nil
}

func (t *Tracker) CompleteTask(_ context.Context, id int64) error {
	t.called("complete:" + itoa(id))
	return t.CompleteErr
}

func (t *Tracker) AddComment(_ context.Context, id int64, text string) error {
	t.called("comment:" + itoa(id) + ":" + text)
	return t.CommentErr
}

func (t *Tracker) SearchUserByEmail(_ context.Context, email string) ([]infrastructure.BitrixUser, error) {
	t.called("search:" + email)
	return t.Users[strings.ToLower(email)], nil
}

// ListDealStages is not recorded in Calls.
func (t *Tracker) ListDealStages(_ context.Context, categoryID int64) ([]infrastructure.DealStage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.StagesErr != nil {
		return nil, t.StagesErr
	}
	return t.Stages[categoryID], nil
}

func (t *Tracker) ListDeals(_ context.Context, filter map[string]any, _ []string, _ map[string]string, start int) (*infrastructure.DealPage, error) {
	t.called("deals:" + itoa(int64(start)))
	t.mu.Lock()
	defer t.mu.Unlock()
	t.DealFilters = append(t.DealFilters, filter)
	page := t.DealPage
	return &page, nil
}

func (t *Tracker) MoveDealToStage(_ context.Context, id int64, stage string) error {
	t.called("deal:" + itoa(id) + ":" + stage)
	return t.DealErr
}

func (t *Tracker) CommentDeal(_ context.Context, id int64, text string) error {
	t.called("deal_comment:" + itoa(id) + ":" + text)
	return nil
}

func (t *Tracker) TaskURL(id int64) string {
	return "https://portal.example/task/" + itoa(id)
}

// Messenger collects sent texts.
type Messenger struct {
	mu   sync.Mutex
	Sent map[int64][]string
	Err  error
}

func NewMessenger() *Messenger {
	return &Messenger{Sent: map[int64][]string{}}
}

func (m *Messenger) SendText(chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent[chatID] = append(m.Sent[chatID], text)
	return nil
}
