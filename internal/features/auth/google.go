package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/internal/features/user"
	"github.com/edutech/marketplace-server-go/pkg/types"
)

// GoogleVerifier exchanges an OAuth authorization code for the Google profile.
type GoogleVerifier interface {
	AuthURL(state string) string
	Verify(ctx context.Context, code string) (*GoogleProfile, error)
}

// GoogleProfile holds the subset of the Google userinfo payload we use.
type GoogleProfile struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Picture   string
}

type googleVerifier struct {
	config *oauth2.Config
}

// NewGoogleVerifier builds a verifier from OAuth client credentials.
func NewGoogleVerifier(clientID, clientSecret, redirectURL string) GoogleVerifier {
	return &googleVerifier{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
	}
}

func (v *googleVerifier) AuthURL(state string) string {
	return v.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (v *googleVerifier) Verify(ctx context.Context, code string) (*GoogleProfile, error) {
	token, err := v.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	service, err := oauth2api.NewService(ctx, option.WithTokenSource(v.config.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("create oauth2 service: %w", err)
	}

	info, err := service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}

	return &GoogleProfile{
		ID:        info.Id,
		Email:     info.Email,
		FirstName: info.GivenName,
		LastName:  info.FamilyName,
		Picture:   info.Picture,
	}, nil
}

// GoogleSignIn authenticates a user via a Google OAuth code, creating the
// account on first sign-in. Existing email accounts are linked to the
// Google identity.
func GoogleSignIn(ctx context.Context, db *gorm.DB, verifier GoogleVerifier, code string, cfg TokenConfig) (*AuthResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrMissingFields
	}

	profile, err := verifier.Verify(ctx, code)
	if err != nil {
		return nil, ErrGoogleAuthFailed
	}

	if profile.Email == "" {
		return nil, ErrGoogleAuthFailed
	}

	usr, err := user.GetByEmail(db, profile.Email)
	switch {
	case err == nil:
		if usr.GoogleID == nil {
			if err := db.Model(&user.User{}).Where("id = ?", usr.ID).
				Update("google_id", profile.ID).Error; err != nil {
				return nil, err
			}
			usr.GoogleID = &profile.ID
		}
	case err == user.ErrUserNotFound:
		// Sign-in happens without a password, generate an unguessable one
		created, createErr := user.Create(db, user.CreateInput{
			FirstName: firstNonEmpty(profile.FirstName, "Google"),
			LastName:  firstNonEmpty(profile.LastName, "User"),
			Email:     profile.Email,
			Password:  uuid.NewString(),
			Role:      types.RoleStudent,
			GoogleID:  &profile.ID,
		})
		if createErr != nil {
			return nil, createErr
		}

		if profile.Picture != "" {
			created, _ = user.SetProfilePicture(db, created.ID, profile.Picture)
		}
		usr = created
	default:
		return nil, err
	}

	return issueTokens(db, &usr, cfg)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
