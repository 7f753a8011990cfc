package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/roomcal/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用したOAuth認証情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// FindByUserID はユーザーの認証情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByUserID(ctx context.Context, userID string) (*model.Credentials, error) {
	creds := &model.Credentials{}
	var expiry sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, access_token, refresh_token, id_token, token_expiry, updated_at
		 FROM credentials
		 WHERE user_id = $1`,
		userID,
	).Scan(&creds.UserID, &creds.AccessToken, &creds.RefreshToken, &creds.IDToken, &expiry, &creds.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credentials: %w", err)
	}
	if expiry.Valid {
		creds.Expiry = expiry.Time
	}
	return creds, nil
}

// Upsert は認証情報を作成または更新する。
// Googleは初回同意時にのみリフレッシュトークンを返すため、空の場合は既存の値を維持する。
func (r *PostgresCredentialRepo) Upsert(ctx context.Context, creds *model.Credentials) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, access_token, refresh_token, id_token, token_expiry, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		   access_token = EXCLUDED.access_token,
		   refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), credentials.refresh_token),
		   id_token = COALESCE(NULLIF(EXCLUDED.id_token, ''), credentials.id_token),
		   token_expiry = EXCLUDED.token_expiry,
		   updated_at = EXCLUDED.updated_at`,
		creds.UserID, creds.AccessToken, creds.RefreshToken, creds.IDToken, nullTime(creds.Expiry), creds.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credentials: %w", err)
	}
	return nil
}

// DeleteByUserID はユーザーの認証情報を削除する。
func (r *PostgresCredentialRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

// nullTime はゼロ値の時刻をNULLとして扱う。
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
