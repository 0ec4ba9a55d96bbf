package user

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/edutech/marketplace-server-go/pkg/types"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access underlying database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func TestCreate_HashesPasswordAndDefaultsRole(t *testing.T) {
	db := setupTestDB(t)

	usr, err := Create(db, CreateInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "Ada@Example.com",
		Password:  "secret-password",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if usr.Email != "ada@example.com" {
		t.Errorf("expected lowercased email, got %q", usr.Email)
	}
	if usr.Role != types.RoleStudent {
		t.Errorf("expected default student role, got %q", usr.Role)
	}
	if usr.Password == "secret-password" {
		t.Error("expected password to be hashed")
	}
	if !usr.ComparePassword("secret-password") {
		t.Error("ComparePassword() rejected the original password")
	}
	if usr.ComparePassword("wrong-password") {
		t.Error("ComparePassword() accepted a wrong password")
	}
	if usr.DisplayName() != "Ada Lovelace" {
		t.Errorf("unexpected display name %q", usr.DisplayName())
	}

	found, err := GetByEmail(db, "  ADA@example.COM ")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if found.ID != usr.ID {
		t.Errorf("GetByEmail() returned %s, want %s", found.ID, usr.ID)
	}
}

func TestCreate_RejectsShortPasswordAndBadRole(t *testing.T) {
	db := setupTestDB(t)

	if _, err := Create(db, CreateInput{Email: "a@b.com", Password: "short"}); err != ErrInvalidPassword {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}
	if _, err := Create(db, CreateInput{Email: "a@b.com", Password: "long-enough", Role: "admin"}); err != ErrInvalidRole {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	db := setupTestDB(t)

	input := CreateInput{FirstName: "A", LastName: "B", Email: "dup@example.com", Password: "password1"}
	if _, err := Create(db, input); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := Create(db, input); err != ErrEmailTaken {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestUpdate_AllowListedFields(t *testing.T) {
	db := setupTestDB(t)

	usr, err := Create(db, CreateInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	first := "Grace"
	bio := "Compiler pioneer"
	updated, err := Update(db, usr.ID, UpdateInput{FirstName: &first, BioProvided: true, Bio: &bio})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.FirstName != "Grace" {
		t.Errorf("expected first name Grace, got %q", updated.FirstName)
	}
	if updated.LastName != "Lovelace" {
		t.Errorf("expected last name unchanged, got %q", updated.LastName)
	}
	if updated.Bio == nil || *updated.Bio != "Compiler pioneer" {
		t.Errorf("unexpected bio %v", updated.Bio)
	}

	// Clearing the bio with an explicit null.
	cleared, err := Update(db, usr.ID, UpdateInput{BioProvided: true, Bio: nil})
	if err != nil {
		t.Fatalf("clearing Update() error = %v", err)
	}
	if cleared.Bio != nil {
		t.Errorf("expected bio cleared, got %v", cleared.Bio)
	}
}

func TestGetSummaries(t *testing.T) {
	db := setupTestDB(t)

	first, err := Create(db, CreateInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second, err := Create(db, CreateInput{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	summaries, err := GetSummaries(db, []uuid.UUID{first.ID, second.ID, uuid.New()})
	if err != nil {
		t.Fatalf("GetSummaries() error = %v", err)
	}

	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[first.ID].FirstName != "Ada" || summaries[second.ID].FirstName != "Alan" {
		t.Errorf("unexpected summaries: %+v", summaries)
	}

	empty, err := GetSummaries(db, nil)
	if err != nil {
		t.Fatalf("GetSummaries(nil) error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty map, got %d entries", len(empty))
	}
}

func TestGet_NotFound(t *testing.T) {
	db := setupTestDB(t)

	if _, err := Get(db, uuid.New()); err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := GetByEmail(db, "nobody@example.com"); err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
