package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/service"
)

// TeamRepository persists teams.
type TeamRepository struct {
	db *pgxpool.Pool
}

// NewTeamRepository constructs a TeamRepository.
func NewTeamRepository(db *pgxpool.Pool) *TeamRepository {
	return &TeamRepository{db: db}
}

// CreateTeam inserts a new team.
func (r *TeamRepository) CreateTeam(ctx context.Context, t *model.Team) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO teams (id, event_id, name, leader_id, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		t.ID, t.EventID, t.Name, t.LeaderID, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

// GetTeam returns one team or ErrNotFound.
func (r *TeamRepository) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	var t model.Team
	err := r.db.QueryRow(ctx,
		`SELECT id, event_id, name, leader_id, created_at FROM teams WHERE id = $1`, id).
		Scan(&t.ID, &t.EventID, &t.Name, &t.LeaderID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrNotFound
		}
		return nil, fmt.Errorf("scan team: %w", err)
	}
	return &t, nil
}
