package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"plainsmart.org/internal/token"
)

func TestRefreshRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	refresh := store.Refresh()
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("insert into refresh_tokens")).
		WithArgs("01T", "01A", "AngularSPA", []byte(`["WebAPI"]`), "deadbeef",
			sqlmock.AnyArg(), sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := refresh.Create(context.Background(), &token.RefreshToken{
		ID:        "01T",
		AccountID: "01A",
		ClientID:  "AngularSPA",
		Scopes:    []string{"WebAPI"},
		TokenHash: "deadbeef",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("from refresh_tokens where id=$1")).
		WithArgs("01T").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "account_id", "client_id", "scopes", "token_hash", "expires_at", "created_at", "revoked",
		}).AddRow("01T", "01A", "AngularSPA", []byte(`["WebAPI"]`), "deadbeef", now.Add(time.Hour), now, false))

	tok, err := refresh.Find(context.Background(), "01T")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if tok.AccountID != "01A" || len(tok.Scopes) != 1 || tok.Scopes[0] != "WebAPI" {
		t.Fatalf("unexpected token: %+v", tok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRefreshFindMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("from refresh_tokens where id=$1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "account_id", "client_id", "scopes", "token_hash", "expires_at", "created_at", "revoked",
		}))

	_, err := store.Refresh().Find(context.Background(), "nope")
	if !errors.Is(err, token.ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkRevoked(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("update refresh_tokens set revoked=true where id=$1")).
		WithArgs("01T").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("update refresh_tokens set revoked=true where account_id=$1")).
		WithArgs("01A").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := store.Refresh().MarkRevoked(context.Background(), "01T"); err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}
	if err := store.Refresh().MarkRevokedByAccount(context.Background(), "01A"); err != nil {
		t.Fatalf("MarkRevokedByAccount: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
