package repository

import (
	"context"
	"errors"
	"fmt"

	"brigadebot/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TeamRepository struct {
	db *pgxpool.Pool
}

func NewTeamRepository(db *pgxpool.Pool) *TeamRepository {
	return &TeamRepository{db: db}
}

// Create inserts a team with a caller-chosen id.
func (r *TeamRepository) Create(ctx context.Context, team entities.Team) error {
	if team.ID <= 0 {
		return ErrTeamIDRequired
	}
	_, err := r.db.Exec(ctx, "INSERT INTO teams (id, name) VALUES ($1, $2)", team.ID, team.Name)
	if isUniqueViolation(err) {
		return ErrDuplicateTeam
	}
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

// Upsert creates the team or renames an existing one.
func (r *TeamRepository) Upsert(ctx context.Context, team entities.Team) error {
	if team.ID <= 0 {
		return ErrTeamIDRequired
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO teams (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		team.ID, team.Name)
	if err != nil {
		return fmt.Errorf("upsert team %d: %w", team.ID, err)
	}
	return nil
}

// Seed upserts every team of the catalogue.
func (r *TeamRepository) Seed(ctx context.Context, teams []entities.Team) error {
	for _, t := range teams {
		if err := r.Upsert(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Get returns nil, nil when the team does not exist.
func (r *TeamRepository) Get(ctx context.Context, id int64) (*entities.Team, error) {
	var t entities.Team
	err := r.db.QueryRow(ctx, "SELECT id, name FROM teams WHERE id = $1", id).Scan(&t.ID, &t.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get team %d: %w", id, err)
	}
	return &t, nil
}

func (r *TeamRepository) List(ctx context.Context) ([]entities.Team, error) {
	rows, err := r.db.Query(ctx, "SELECT id, name FROM teams ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	teams := []entities.Team{}
	for rows.Next() {
		var t entities.Team
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}
