// Package testutil provides per-test SQLite databases migrated with the
// production schema, plus small fixtures.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/cardiosense/assessment-api/internal/database"
	"github.com/cardiosense/assessment-api/internal/model"
	"github.com/cardiosense/assessment-api/internal/repository"
)

// BcryptCost is the cheapest cost bcrypt accepts, to keep tests fast.
const BcryptCost = 4

// DB returns a fresh migrated database in the test's temp dir. It is
// closed automatically when the test ends.
func DB(tb testing.TB) *sql.DB {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "test.db")
	if err := database.RunMigrations("sqlite", database.SQLiteMigrationURL(path)); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	db, err := database.OpenSQLite(path)
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })
	return db
}

// User registers a user with the given email and role.
func User(tb testing.TB, db *sql.DB, email, role string) model.User {
	tb.Helper()

	u, err := repository.NewUserRepo(db).Create(context.Background(), email, "secret-password", role, BcryptCost)
	if err != nil {
		tb.Fatalf("create user %s: %v", email, err)
	}
	return u
}

// Assessment stores a scored assessment for userID.
func Assessment(tb testing.TB, db *sql.DB, userID string, score float64) model.Assessment {
	tb.Helper()

	w, h := 75.0, 170.0
	c := 0.12
	a := model.Assessment{
		UserID:    userID,
		RiskScore: score,
		ModelUsed: "diabetes",
		Drivers:   model.Drivers{model.ScoredFactor{Feature: "bmi", Contribution: &c, Impact: model.ImpactIncreases}},
		Payload:   model.Payload{WeightKG: &w, HeightCM: &h, PlanText: "Camina 30 minutos al día."},
	}
	if err := repository.NewAssessmentRepo(db).Create(context.Background(), &a); err != nil {
		tb.Fatalf("create assessment: %v", err)
	}
	return a
}
