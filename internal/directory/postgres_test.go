package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"hrvault.org/internal/rbac"
)

func accountRows(version int64, role string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"email", "role", "status", "session_version",
		"display_name", "password_hash", "created_at", "updated_at",
	}).AddRow("a@b.com", role, StatusActive, version, "A B", "hash", now, now)
}

func TestPGStoreGetAccountByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select .* from accounts where email=").
		WithArgs("a@b.com").
		WillReturnRows(accountRows(4, "manager"))

	store := NewPGStore(db)
	acct, err := store.GetAccountByEmail(context.Background(), " A@B.com ")
	if err != nil {
		t.Fatalf("GetAccountByEmail: %v", err)
	}
	if acct.Role != rbac.RoleManager || acct.SessionVersion != 4 {
		t.Fatalf("unexpected account: %+v", acct)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreGetAccountNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select .* from accounts where email=").
		WithArgs("missing@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"email"}))

	store := NewPGStore(db)
	if _, err := store.GetAccountByEmail(context.Background(), "missing@b.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreIncrementSessionVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("update accounts set session_version = session_version \\+ 1").
		WithArgs("a@b.com").
		WillReturnRows(accountRows(5, "employee"))

	store := NewPGStore(db)
	acct, err := store.IncrementSessionVersion(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("IncrementSessionVersion: %v", err)
	}
	if acct.SessionVersion != 5 {
		t.Fatalf("unexpected version: %d", acct.SessionVersion)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreUpdateRoleNormalizesStoredRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("update accounts set role=").
		WithArgs("a@b.com", "hr_admin").
		WillReturnRows(accountRows(6, "hr_admin"))

	store := NewPGStore(db)
	acct, err := store.UpdateRole(context.Background(), "a@b.com", rbac.RoleHRAdmin)
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if acct.Role != rbac.RoleHRAdmin {
		t.Fatalf("unexpected role: %s", acct.Role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
