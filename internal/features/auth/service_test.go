package auth

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/edutech/marketplace-server-go/internal/features/user"
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

	if err := db.AutoMigrate(&user.User{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func testTokenConfig() TokenConfig {
	return TokenConfig{
		JWTSecret:           "access-secret",
		JWTRefreshSecret:    "refresh-secret",
		AccessTokenExpiry:   time.Hour,
		RefreshTokenExpiry:  24 * time.Hour,
		PasswordResetExpiry: 15 * time.Minute,
	}
}

type fakeVerifier struct {
	profile *GoogleProfile
	err     error
}

func (f *fakeVerifier) AuthURL(state string) string { return "https://accounts.example/auth?state=" + state }

func (f *fakeVerifier) Verify(_ context.Context, _ string) (*GoogleProfile, error) {
	return f.profile, f.err
}

func TestRegisterAndLogin(t *testing.T) {
	db := setupTestDB(t)
	cfg := testTokenConfig()

	resp, err := Register(db, RegisterInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Password:  "password1",
		Role:      types.RoleTutor,
	}, cfg)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Error("expected both tokens to be issued")
	}
	if resp.User.Role != types.RoleTutor {
		t.Errorf("Role = %q, want tutor", resp.User.Role)
	}

	login, err := Login(db, LoginInput{Email: "ada@example.com", Password: "password1"}, cfg)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if login.User.ID != resp.User.ID {
		t.Errorf("Login() returned user %s, want %s", login.User.ID, resp.User.ID)
	}

	if _, err := Login(db, LoginInput{Email: "ada@example.com", Password: "wrong-password"}, cfg); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := Login(db, LoginInput{Email: "nobody@example.com", Password: "password1"}, cfg); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	db := setupTestDB(t)
	cfg := testTokenConfig()

	if _, err := Register(db, RegisterInput{Email: "a@b.com", Password: "password1"}, cfg); err != ErrMissingFields {
		t.Errorf("expected ErrMissingFields, got %v", err)
	}
	if _, err := Register(db, RegisterInput{FirstName: "A", LastName: "B", Email: "not-an-email", Password: "password1"}, cfg); err != ErrInvalidEmail {
		t.Errorf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := Register(db, RegisterInput{FirstName: "A", LastName: "B", Email: "a@b.com", Password: "short"}, cfg); err != ErrWeakPassword {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRefreshAccessToken_RotatesAndRejectsStale(t *testing.T) {
	db := setupTestDB(t)
	cfg := testTokenConfig()

	resp, err := Register(db, RegisterInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "password1"}, cfg)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	pair, err := RefreshAccessToken(db, resp.RefreshToken, cfg)
	if err != nil {
		t.Fatalf("RefreshAccessToken() error = %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("expected rotated token pair")
	}

	// The previous refresh token was replaced and no longer matches.
	if _, err := RefreshAccessToken(db, resp.RefreshToken, cfg); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for stale refresh token, got %v", err)
	}

	if _, err := RefreshAccessToken(db, pair.RefreshToken, cfg); err != nil {
		t.Errorf("RefreshAccessToken() with rotated token error = %v", err)
	}
}

func TestLogoutClearsRefreshToken(t *testing.T) {
	db := setupTestDB(t)
	cfg := testTokenConfig()

	resp, err := Register(db, RegisterInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "password1"}, cfg)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := Logout(db, resp.AccessToken, cfg); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if _, err := RefreshAccessToken(db, resp.RefreshToken, cfg); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken after logout, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	db := setupTestDB(t)
	cfg := testTokenConfig()

	resp, err := Register(db, RegisterInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "password1"}, cfg)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	info, err := RequestPasswordReset(db, "ada@example.com", cfg)
	if err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if info == nil || info.Token == "" {
		t.Fatal("expected a reset token")
	}

	// Unknown emails get a nil info, not an error.
	missing, err := RequestPasswordReset(db, "nobody@example.com", cfg)
	if err != nil || missing != nil {
		t.Errorf("RequestPasswordReset(unknown) = (%v, %v), want (nil, nil)", missing, err)
	}

	if err := ResetPassword(db, info.Token, "new-password", cfg); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}

	if _, err := Login(db, LoginInput{Email: "ada@example.com", Password: "password1"}, cfg); err != ErrInvalidCredentials {
		t.Errorf("expected old password rejected, got %v", err)
	}
	if _, err := Login(db, LoginInput{Email: "ada@example.com", Password: "new-password"}, cfg); err != nil {
		t.Errorf("Login() with new password error = %v", err)
	}

	// Sessions issued before the reset are invalidated.
	if _, err := RefreshAccessToken(db, resp.RefreshToken, cfg); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken after reset, got %v", err)
	}
}

func TestResetPassword_RejectsWrongPurposeToken(t *testing.T) {
	db := setupTestDB(t)
	cfg := testTokenConfig()

	resp, err := Register(db, RegisterInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "password1"}, cfg)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := ResetPassword(db, resp.AccessToken, "new-password", cfg); err != ErrInvalidTokenType {
		t.Errorf("expected ErrInvalidTokenType, got %v", err)
	}
}

func TestGoogleSignIn_CreatesAndLinksAccounts(t *testing.T) {
	db := setupTestDB(t)
	cfg := testTokenConfig()
	ctx := context.Background()

	verifier := &fakeVerifier{profile: &GoogleProfile{
		ID:        "google-123",
		Email:     "ada@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}}

	// First sign-in creates the account.
	resp, err := GoogleSignIn(ctx, db, verifier, "auth-code", cfg)
	if err != nil {
		t.Fatalf("GoogleSignIn() error = %v", err)
	}
	if resp.User.GoogleID == nil || *resp.User.GoogleID != "google-123" {
		t.Errorf("expected linked google id, got %v", resp.User.GoogleID)
	}
	if resp.User.Role != types.RoleStudent {
		t.Errorf("Role = %q, want student", resp.User.Role)
	}

	// A second sign-in reuses the same account.
	again, err := GoogleSignIn(ctx, db, verifier, "auth-code", cfg)
	if err != nil {
		t.Fatalf("second GoogleSignIn() error = %v", err)
	}
	if again.User.ID != resp.User.ID {
		t.Errorf("expected same user, got %s and %s", resp.User.ID, again.User.ID)
	}

	var count int64
	if err := db.Model(&user.User{}).Count(&count).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}
}

func TestGoogleSignIn_FailedExchange(t *testing.T) {
	db := setupTestDB(t)
	cfg := testTokenConfig()

	verifier := &fakeVerifier{err: ErrGoogleAuthFailed}
	if _, err := GoogleSignIn(context.Background(), db, verifier, "bad-code", cfg); err != ErrGoogleAuthFailed {
		t.Errorf("expected ErrGoogleAuthFailed, got %v", err)
	}
	if _, err := GoogleSignIn(context.Background(), db, verifier, "  ", cfg); err != ErrMissingFields {
		t.Errorf("expected ErrMissingFields for blank code, got %v", err)
	}
}
