// Package pg implements the identity and refresh-token stores on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"plainsmart.org/internal/identity"
	"plainsmart.org/internal/ids"
)

// Store wraps a connection pool and exposes the identity sub-stores.
type Store struct {
	db *sql.DB
}

var _ identity.Store = (*Store)(nil)

// Open connects to PostgreSQL with pool defaults tuned for this service.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool; tests use it with sqlmock.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the pool for the readiness probe.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Accounts() identity.AccountStore { return &accountStore{db: s.db} }
func (s *Store) Roles() identity.RoleStore       { return &roleStore{db: s.db} }

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Account store -------------------------------------------------------------

type accountStore struct{ db *sql.DB }

const accountColumns = `id, username, normalized_username, given_name, family_name,
	password_hash, lockout_enabled, access_failed_count, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*identity.Account, error) {
	var a identity.Account
	err := row.Scan(&a.ID, &a.Username, &a.NormalizedUsername, &a.GivenName, &a.FamilyName,
		&a.PasswordHash, &a.LockoutEnabled, &a.AccessFailedCount, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *accountStore) Create(ctx context.Context, a *identity.Account) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		insert into accounts(id, username, normalized_username, given_name, family_name,
			password_hash, lockout_enabled, access_failed_count, created_at, updated_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.Username, a.NormalizedUsername, a.GivenName, a.FamilyName,
		a.PasswordHash, a.LockoutEnabled, a.AccessFailedCount, a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return identity.ErrAlreadyExists
	}
	return err
}

func (s *accountStore) FindByID(ctx context.Context, id string) (*identity.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *accountStore) FindByUsername(ctx context.Context, normalized string) (*identity.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where normalized_username=$1`, normalized)
	return scanAccount(row)
}

func (s *accountStore) Update(ctx context.Context, a *identity.Account) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		update accounts set given_name=$2, family_name=$3, password_hash=$4,
			lockout_enabled=$5, access_failed_count=$6, updated_at=$7
		where normalized_username=$1`,
		a.NormalizedUsername, a.GivenName, a.FamilyName, a.PasswordHash,
		a.LockoutEnabled, a.AccessFailedCount, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *accountStore) Delete(ctx context.Context, normalized string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from accounts where normalized_username=$1`, normalized)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// Role store ----------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Ensure(ctx context.Context, r *identity.Role) (bool, error) {
	if r.ID == "" {
		r.ID = ids.New()
	}
	res, err := s.db.ExecContext(ctx,
		`insert into roles(id, name, created_at) values($1,$2,now()) on conflict (name) do nothing`,
		r.ID, r.Name,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return true, nil
	}
	existing, err := s.FindByName(ctx, r.Name)
	if err != nil {
		return false, err
	}
	*r = *existing
	return false, nil
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*identity.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, created_at from roles where name=$1`, name)
	var r identity.Role
	if err := row.Scan(&r.ID, &r.Name, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *roleStore) Assign(ctx context.Context, accountID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into account_roles(account_id, role_id, created_at) values($1,$2,now())
		 on conflict do nothing`,
		accountID, roleID,
	)
	return err
}

func (s *roleStore) Unassign(ctx context.Context, accountID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from account_roles where account_id=$1 and role_id=$2`, accountID, roleID)
	return err
}

func (s *roleStore) RolesFor(ctx context.Context, accountID string) ([]identity.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.created_at from roles r
		join account_roles ar on ar.role_id=r.id
		where ar.account_id=$1 order by r.name`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []identity.Role
	for rows.Next() {
		var r identity.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (s *roleStore) AccountsInRole(ctx context.Context, roleID string) ([]*identity.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		select a.id, a.username, a.normalized_username, a.given_name, a.family_name,
			a.password_hash, a.lockout_enabled, a.access_failed_count, a.created_at, a.updated_at
		from accounts a
		join account_roles ar on ar.account_id=a.id
		where ar.role_id=$1 order by a.id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*identity.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
