package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	FullName      string    `json:"full_name,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	Role          UserRole  `json:"role"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleResearcher UserRole = "researcher"
	RolePatient    UserRole = "patient"
	RoleFunder     UserRole = "funder"
	RoleReviewer   UserRole = "reviewer"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleResearcher, RolePatient, RoleFunder, RoleReviewer:
		return true
	}
	return false
}

// ParseUserRole maps the persisted lowercase string back to the enum.
// Unknown values are rejected, never defaulted.
func ParseUserRole(s string) (UserRole, error) {
	r := UserRole(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown user role %q", s)
	}
	return r, nil
}

// UserResponse is the public shape of a user, without the password hash.
type UserResponse struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	FullName      string    `json:"full_name,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	Role          UserRole  `json:"role"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (u *User) Response() UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		FullName:      u.FullName,
		Bio:           u.Bio,
		Role:          u.Role,
		WalletAddress: u.WalletAddress,
		CreatedAt:     u.CreatedAt,
	}
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type CreateUserRequest struct {
	Email         string   `json:"email"`
	Username      string   `json:"username"`
	Password      string   `json:"password"`
	FullName      string   `json:"full_name,omitempty"`
	Bio           string   `json:"bio,omitempty"`
	Role          UserRole `json:"role"`
	WalletAddress string   `json:"wallet_address,omitempty"`
}

type UpdateUserRequest struct {
	Email         *string `json:"email,omitempty"`
	Username      *string `json:"username,omitempty"`
	FullName      *string `json:"full_name,omitempty"`
	Bio           *string `json:"bio,omitempty"`
	WalletAddress *string `json:"wallet_address,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
