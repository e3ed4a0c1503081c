package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pribylovaa/emenu-auth/internal/models"
	"github.com/pribylovaa/emenu-auth/internal/storage"
)

// SaveToken вставляет новую запись выданной пары токенов.
func (s *Storage) SaveToken(ctx context.Context, token *models.Token) error {
	const op = "storage.postgres.SaveToken"

	query := `
		INSERT INTO user_tokens(
			user_id, access_token_hash, refresh_token_hash,
			access_expires_at, refresh_expires_at, active, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query,
		token.UserID,
		token.AccessTokenHash,
		token.RefreshTokenHash,
		token.AccessExpiresAt,
		token.RefreshExpiresAt,
		token.Active,
		nullTime(token.CreatedAt),
	).Scan(&token.ID, &token.CreatedAt)

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ActiveTokenByHash возвращает активную запись с наибольшим сроком действия
// токена данного типа.
func (s *Storage) ActiveTokenByHash(ctx context.Context, kind models.TokenKind, hash string) (*models.Token, error) {
	const op = "storage.postgres.ActiveTokenByHash"

	query := `
		SELECT id, user_id, access_token_hash, refresh_token_hash,
		       access_expires_at, refresh_expires_at, active, created_at
		FROM user_tokens
		WHERE access_token_hash = $1 AND active
		ORDER BY access_expires_at DESC, id DESC
		LIMIT 1
	`
	if kind == models.TokenRefresh {
		query = `
			SELECT id, user_id, access_token_hash, refresh_token_hash,
			       access_expires_at, refresh_expires_at, active, created_at
			FROM user_tokens
			WHERE refresh_token_hash = $1 AND active
			ORDER BY refresh_expires_at DESC, id DESC
			LIMIT 1
		`
	}

	rows, err := s.db.Query(ctx, query, hash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tokens, err := pgx.CollectRows(rows, scanToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return tokens[0], nil
}

// RevokeByAccessHash деактивирует запись с данным access-хэшем и все
// записи с тем же refresh-хэшем одним UPDATE и возвращает всю сессию.
func (s *Storage) RevokeByAccessHash(ctx context.Context, accessHash string) ([]*models.Token, error) {
	const op = "storage.postgres.RevokeByAccessHash"

	query := `
		WITH target AS (
			SELECT refresh_token_hash
			FROM user_tokens
			WHERE access_token_hash = $1
			LIMIT 1
		)
		UPDATE user_tokens t
		SET active = FALSE
		FROM target
		WHERE t.access_token_hash = $1 OR t.refresh_token_hash = target.refresh_token_hash
		RETURNING t.id, t.user_id, t.access_token_hash, t.refresh_token_hash,
		          t.access_expires_at, t.refresh_expires_at, t.active, t.created_at
	`

	rows, err := s.db.Query(ctx, query, accessHash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	revoked, err := pgx.CollectRows(rows, scanToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return revoked, nil
}

func scanToken(row pgx.CollectableRow) (*models.Token, error) {
	var t models.Token
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.AccessTokenHash,
		&t.RefreshTokenHash,
		&t.AccessExpiresAt,
		&t.RefreshExpiresAt,
		&t.Active,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.AccessExpiresAt = t.AccessExpiresAt.UTC()
	t.RefreshExpiresAt = t.RefreshExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()

	return &t, nil
}

// nullTime превращает нулевое время в NULL, чтобы сработал DEFAULT/COALESCE.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}
