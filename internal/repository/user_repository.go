package repository

import (
	"context"
	"errors"
	"fmt"

	"brigadebot/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = "id, tg_user_id, bitrix_user_id, full_name, team_id, COALESCE(role, 'worker'), created_at"

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*entities.User, error) {
	var u entities.User
	if err := row.Scan(&u.ID, &u.TgUserID, &u.BitrixUserID, &u.FullName, &u.TeamID, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user. A second row for the same Telegram id fails
// with ErrDuplicateUser.
func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	role := user.Role
	if role == "" {
		role = entities.RoleWorker
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (tg_user_id, bitrix_user_id, full_name, team_id, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		user.TgUserID, user.BitrixUserID, user.FullName, user.TeamID, role,
	).Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	user.Role = role
	return nil
}

// GetByTelegramID returns nil, nil when the user is unknown.
func (r *UserRepository) GetByTelegramID(ctx context.Context, tgUserID int64) (*entities.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE tg_user_id = $1", tgUserID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", tgUserID, err)
	}
	return u, nil
}

// UpsertTeam registers the user if needed and moves them to teamID.
// An empty fullName keeps the stored one.
func (r *UserRepository) UpsertTeam(ctx context.Context, tgUserID int64, fullName string, teamID int64) (*entities.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `
		INSERT INTO users (tg_user_id, full_name, team_id)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (tg_user_id) DO UPDATE
		SET team_id   = EXCLUDED.team_id,
		    full_name = COALESCE(EXCLUDED.full_name, users.full_name)
		RETURNING `+userColumns,
		tgUserID, fullName, teamID))
	if err != nil {
		return nil, fmt.Errorf("upsert user team: %w", err)
	}
	return u, nil
}

// LinkBitrix stores the Bitrix user id, registering the user if needed.
func (r *UserRepository) LinkBitrix(ctx context.Context, tgUserID, bitrixUserID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (tg_user_id, bitrix_user_id)
		VALUES ($1, $2)
		ON CONFLICT (tg_user_id) DO UPDATE
		SET bitrix_user_id = EXCLUDED.bitrix_user_id`,
		tgUserID, bitrixUserID)
	if err != nil {
		return fmt.Errorf("link bitrix user: %w", err)
	}
	return nil
}

func (r *UserRepository) SetRole(ctx context.Context, tgUserID int64, role string) error {
	tag, err := r.db.Exec(ctx, "UPDATE users SET role = $2 WHERE tg_user_id = $1", tgUserID, role)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) ListByTeam(ctx context.Context, teamID int64) ([]entities.User, error) {
	return r.list(ctx,
		"SELECT "+userColumns+" FROM users WHERE team_id = $1 ORDER BY full_name NULLS LAST, tg_user_id",
		teamID)
}

func (r *UserRepository) ListAll(ctx context.Context) ([]entities.User, error) {
	return r.list(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
}

func (r *UserRepository) list(ctx context.Context, query string, args ...any) ([]entities.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []entities.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
