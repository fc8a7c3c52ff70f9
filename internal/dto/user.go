package dto

import (
	"time"

	"authority/internal/domain"
)

type UserResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsVerified bool   `json:"isVerified"`
	MFAEnabled bool   `json:"mfaEnabled"`
}

func NewUserResponse(u *domain.Identity) *UserResponse {
	return &UserResponse{
		ID:         u.ID.String(),
		Name:       u.Name,
		Email:      u.Email,
		IsVerified: u.Verified,
		MFAEnabled: u.MFAEnabled,
	}
}

type SessionResponse struct {
	ID         string    `json:"id"`
	DeviceInfo string    `json:"deviceInfo"`
	IPAddress  string    `json:"ipAddress"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
	IsCurrent  bool      `json:"isCurrent"`
}
