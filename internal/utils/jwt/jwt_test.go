package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

const testSecret = "test-secret-key"

func TestAccessTokenRoundTrip(t *testing.T) {
	userID := uuid.New()

	token, err := GenerateAccessToken(userID, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := VerifyToken(token, testSecret)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %s, want %s", claims.UserID, userID)
	}
	if claims.Purpose != "" {
		t.Errorf("expected empty purpose, got %q", claims.Purpose)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	token, err := GenerateAccessToken(uuid.New(), testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	if _, err := VerifyToken(token, "different-secret"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyToken_Garbage(t *testing.T) {
	if _, err := VerifyToken("not-a-jwt", testSecret); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	userID := uuid.New()

	token, err := GenerateRefreshToken(userID, testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}

	if _, err := VerifyToken(token, testSecret); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}

	// The claims remain readable without signature validation.
	claims, err := DecodeWithoutVerify(token)
	if err != nil {
		t.Fatalf("DecodeWithoutVerify() error = %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %s, want %s", claims.UserID, userID)
	}
}

func TestPurposeToken(t *testing.T) {
	userID := uuid.New()

	token, err := GeneratePurposeToken(userID, "password-reset", testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GeneratePurposeToken() error = %v", err)
	}

	claims, err := VerifyToken(token, testSecret)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.Purpose != "password-reset" {
		t.Errorf("Purpose = %q, want password-reset", claims.Purpose)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %s, want %s", claims.UserID, userID)
	}
}
