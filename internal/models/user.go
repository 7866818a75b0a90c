// Package models provides data models for the ClicLoop backend.
package models

import (
	"time"
)

// AuthUser is an identity-directory record
type AuthUser struct {
	ID             string    `json:"id" db:"id"`
	Email          string    `json:"email" db:"email"`
	Name           string    `json:"name" db:"name"`
	EmailConfirmed bool      `json:"email_confirmed" db:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Profile is the per-user application profile.
// PlanoAtivo is flipped by the payment webhook.
type Profile struct {
	ID                  string    `json:"id" db:"id"`
	UserID              string    `json:"user_id" db:"user_id"`
	Email               string    `json:"email" db:"email"`
	Name                string    `json:"name" db:"name"`
	Niche               *string   `json:"niche" db:"niche"`
	HelpDescription     *string   `json:"help_description" db:"help_description"`
	OnboardingCompleted bool      `json:"onboarding_completed" db:"onboarding_completed"`
	PlanoAtivo          bool      `json:"plano_ativo" db:"plano_ativo"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// ProfileUpdate carries the editable profile fields from account settings
type ProfileUpdate struct {
	Name            string  `json:"name" validate:"required,max=100"`
	Niche           *string `json:"niche,omitempty" validate:"omitempty,max=100"`
	HelpDescription *string `json:"help_description,omitempty" validate:"omitempty,max=1000"`
}

// OnboardingAnswers are collected once after signup
type OnboardingAnswers struct {
	Niche           string `json:"niche" validate:"required,max=100"`
	HelpDescription string `json:"help_description" validate:"max=1000"`
}
