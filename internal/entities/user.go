package entities

import "time"

// Roles stored in users.role.
const (
	RoleWorker  = "worker"
	RoleForeman = "foreman"
	RoleAdmin   = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	switch r {
	case RoleWorker, RoleForeman, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID           int64     `json:"id"`
	TgUserID     int64     `json:"tg_user_id"`
	BitrixUserID *int64    `json:"bitrix_user_id,omitempty"`
	FullName     *string   `json:"full_name,omitempty"`
	TeamID       *int64    `json:"team_id,omitempty"` // loose reference to teams.id
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName returns the stored full name or the Telegram id.
func (u User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return formatInt(u.TgUserID)
}

// CanManage is true for roles allowed to run reports and move deals.
func (u User) CanManage() bool {
	return u.Role == RoleForeman || u.Role == RoleAdmin
}
