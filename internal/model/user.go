package model

import "time"

const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// User is the identity record. The auth core reads PasswordHash and owns the
// two reset fields; everything else belongs to account management.
type User struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	Phone            *string    `json:"phone,omitempty"`
	Role             string     `json:"role"`
	PasswordHash     string     `json:"-"`
	ResetTokenHash   *string    `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (u User) Public() AuthUser {
	return AuthUser{ID: u.ID, Username: u.Username, Email: u.Email, Phone: u.Phone, Role: u.Role}
}

type AuthUser struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone,omitempty"`
	Role     string  `json:"role"`
}

type AuthUserList struct {
	Users []AuthUser `json:"users"`
}

type TokenPair struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         AuthUser `json:"user"`
}

type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func IsValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}
