package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fitpick/apiserver/types"
)

// OutfitRepository handles persistence for generated outfits.
type OutfitRepository struct {
	db *sql.DB
}

func NewOutfitRepository(db *sql.DB) *OutfitRepository {
	return &OutfitRepository{db: db}
}

func (r *OutfitRepository) Create(ctx context.Context, outfit types.Outfit) (types.Outfit, error) {
	if outfit.GeneratedAt.IsZero() {
		outfit.GeneratedAt = time.Now()
	}

	const query = `
		INSERT INTO outfits (user_id, season, event, outfit, archive_key, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		outfit.UserID,
		outfit.Season,
		outfit.Event,
		outfit.Outfit,
		outfit.ArchiveKey,
		outfit.GeneratedAt,
	).Scan(&outfit.ID); err != nil {
		return types.Outfit{}, err
	}
	return outfit, nil
}

// ListByUser returns the user's generations, newest first.
func (r *OutfitRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]types.Outfit, error) {
	const query = `
		SELECT id, user_id, season, event, outfit, archive_key, generated_at
		FROM outfits
		WHERE user_id = $1
		ORDER BY generated_at DESC, id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outfits []types.Outfit
	for rows.Next() {
		var outfit types.Outfit
		if err := rows.Scan(
			&outfit.ID,
			&outfit.UserID,
			&outfit.Season,
			&outfit.Event,
			&outfit.Outfit,
			&outfit.ArchiveKey,
			&outfit.GeneratedAt,
		); err != nil {
			return nil, err
		}
		outfits = append(outfits, outfit)
	}
	return outfits, rows.Err()
}

func (r *OutfitRepository) Get(ctx context.Context, id int64) (types.Outfit, error) {
	const query = `
		SELECT id, user_id, season, event, outfit, archive_key, generated_at
		FROM outfits
		WHERE id = $1`
	var outfit types.Outfit
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&outfit.ID,
		&outfit.UserID,
		&outfit.Season,
		&outfit.Event,
		&outfit.Outfit,
		&outfit.ArchiveKey,
		&outfit.GeneratedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Outfit{}, ErrNotFound
		}
		return types.Outfit{}, err
	}
	return outfit, nil
}
