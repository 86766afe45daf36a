package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"plainsmart.org/internal/token"
)

// RefreshStore persists refresh tokens in PostgreSQL.
type RefreshStore struct {
	db *sql.DB
}

var _ token.RefreshStore = (*RefreshStore)(nil)

// Refresh returns the refresh-token store sharing this pool.
func (s *Store) Refresh() *RefreshStore { return &RefreshStore{db: s.db} }

func (s *RefreshStore) Create(ctx context.Context, tok *token.RefreshToken) error {
	scopes, err := json.Marshal(tok.Scopes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into refresh_tokens(id, account_id, client_id, scopes, token_hash, expires_at, created_at, revoked)
		values($1,$2,$3,$4,$5,$6,$7,$8)`,
		tok.ID, tok.AccountID, tok.ClientID, scopes, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt, tok.Revoked,
	)
	return err
}

func (s *RefreshStore) Find(ctx context.Context, id string) (*token.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, account_id, client_id, scopes, token_hash, expires_at, created_at, revoked
		from refresh_tokens where id=$1`, id)

	var (
		tok    token.RefreshToken
		scopes []byte
	)
	err := row.Scan(&tok.ID, &tok.AccountID, &tok.ClientID, &scopes,
		&tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt, &tok.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, token.ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scopes, &tok.Scopes); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *RefreshStore) MarkRevoked(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where id=$1`, id)
	return err
}

func (s *RefreshStore) MarkRevokedByAccount(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where account_id=$1`, accountID)
	return err
}
