package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/user"
	"github.com/syaifulazham/techlympics/storage/database"
)

// PrepareDB opens the TEST database, migrates it and empties the user table.
// The test is skipped when no database is reachable.
func PrepareDB(t *testing.T) *sql.DB {
	t.Helper()

	conf := core.NewTestConfig()
	if err := database.CreateIfNotExist(conf); err != nil {
		t.Skipf("test database unavailable: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		t.Fatalf("PrepareDB() migrating: %v", err)
	}
	ResetDB(t, db)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// ResetDB deletes all users.
func ResetDB(t *testing.T, db core.DBExecutor) {
	t.Helper()
	if _, err := db.Exec(`DELETE FROM "user"`); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}
