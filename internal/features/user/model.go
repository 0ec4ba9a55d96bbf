package user

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/pkg/types"
)

// User represents a marketplace account, either a tutor or a student.
type User struct {
	types.BaseModel

	FirstName      string     `gorm:"type:varchar(50);not null;column:first_name" json:"firstName"`
	LastName       string     `gorm:"type:varchar(50);not null;column:last_name" json:"lastName"`
	Email          string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	Password       string     `gorm:"type:varchar(255);not null" json:"-"`
	Role           types.Role `gorm:"type:varchar(20);not null;default:'student';index" json:"role"`
	Bio            *string    `gorm:"type:varchar(600)" json:"bio,omitempty"`
	ProfilePicture *string    `gorm:"type:text;column:profile_picture" json:"profilePicture,omitempty"`
	GoogleID       *string    `gorm:"type:varchar(255);column:google_id;index" json:"-"`
	RefreshToken   *string    `gorm:"type:text;column:refresh_token" json:"-"`
}

// TableName overrides the default table name.
func (User) TableName() string { return "users" }

// BeforeCreate assigns an ID when the database does not generate one.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// DisplayName returns the user's full name for display.
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// CreateInput carries data for creating a new user.
type CreateInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      types.Role
	GoogleID  *string
}

// UpdateInput captures mutable profile fields.
type UpdateInput struct {
	FirstName   *string
	LastName    *string
	BioProvided bool
	Bio         *string
	Password    *string
}

// Get retrieves a user by ID.
func Get(db *gorm.DB, id uuid.UUID) (User, error) {
	var usr User
	if err := db.First(&usr, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return usr, ErrUserNotFound
		}
		return usr, err
	}
	return usr, nil
}

// GetByEmail retrieves a user by email.
func GetByEmail(db *gorm.DB, email string) (User, error) {
	var usr User
	if err := db.First(&usr, "LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return usr, ErrUserNotFound
		}
		return usr, err
	}
	return usr, nil
}

// Create inserts a new user with hashed password.
func Create(db *gorm.DB, input CreateInput) (User, error) {
	if len(input.Password) < 8 {
		return User{}, ErrInvalidPassword
	}

	role := input.Role
	if role == "" {
		role = types.RoleStudent
	}
	if !role.Valid() {
		return User{}, ErrInvalidRole
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), 10)
	if err != nil {
		return User{}, err
	}

	usr := User{
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Password:  string(hashedPassword),
		Role:      role,
		GoogleID:  input.GoogleID,
	}

	if err := db.Create(&usr).Error; err != nil {
		if isUniqueEmailError(err) {
			return usr, ErrEmailTaken
		}
		return usr, err
	}

	return usr, nil
}

// Update modifies an existing user's profile fields.
func Update(db *gorm.DB, id uuid.UUID, input UpdateInput) (User, error) {
	usr, err := Get(db, id)
	if err != nil {
		return usr, err
	}

	updates := map[string]interface{}{}

	if input.FirstName != nil {
		trimmed := strings.TrimSpace(*input.FirstName)
		if trimmed != "" {
			updates["first_name"] = trimmed
		}
	}

	if input.LastName != nil {
		trimmed := strings.TrimSpace(*input.LastName)
		if trimmed != "" {
			updates["last_name"] = trimmed
		}
	}

	if input.BioProvided {
		if input.Bio == nil {
			updates["bio"] = nil
		} else {
			trimmed := strings.TrimSpace(*input.Bio)
			updates["bio"] = trimmed
		}
	}

	if input.Password != nil {
		if len(*input.Password) < 8 {
			return usr, ErrInvalidPassword
		}
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(*input.Password), 10)
		if err != nil {
			return usr, err
		}
		updates["password"] = string(hashedPassword)
	}

	if len(updates) > 0 {
		if err := db.Model(&User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return usr, err
		}
	}

	return Get(db, id)
}

// SetProfilePicture stores the public URL of an uploaded profile picture.
func SetProfilePicture(db *gorm.DB, id uuid.UUID, url string) (User, error) {
	if err := db.Model(&User{}).Where("id = ?", id).Update("profile_picture", url).Error; err != nil {
		return User{}, err
	}
	return Get(db, id)
}

// Summary is the compact sender shape embedded in chat and course payloads.
type Summary struct {
	ID             uuid.UUID `json:"id"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	ProfilePicture *string   `json:"profilePicture,omitempty"`
}

// GetSummaries loads display fields for a set of users.
func GetSummaries(db *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]Summary, error) {
	result := make(map[uuid.UUID]Summary, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []User
	if err := db.Select("id", "first_name", "last_name", "profile_picture").
		Find(&users, "id IN ?", ids).Error; err != nil {
		return nil, err
	}

	for _, usr := range users {
		result[usr.ID] = Summary{
			ID:             usr.ID,
			FirstName:      usr.FirstName,
			LastName:       usr.LastName,
			ProfilePicture: usr.ProfilePicture,
		}
	}

	return result, nil
}

// ComparePassword checks if the provided password matches the user's hashed password.
func (u *User) ComparePassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

func isUniqueEmailError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "users_email_key") ||
		strings.Contains(msg, "idx_users_email") ||
		strings.Contains(msg, "UNIQUE constraint failed: users.email")
}
