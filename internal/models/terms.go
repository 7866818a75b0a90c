package models

import (
	"time"

	"github.com/clicloop/internal/types"
)

// TermsAcceptance is an append-only consent record.
// HMACAssinatura is nil between the insert and the signing update.
type TermsAcceptance struct {
	ID                string            `json:"id" db:"id"`
	UserID            *string           `json:"user_id,omitempty" db:"user_id"`
	Email             string            `json:"email" db:"email"`
	IP                *string           `json:"ip,omitempty" db:"ip"`
	UserAgent         *string           `json:"user_agent,omitempty" db:"user_agent"`
	TermsVersion      string            `json:"terms_version" db:"terms_version"`
	TermsText         string            `json:"terms_text" db:"terms_text"`
	TermsHash         string            `json:"terms_hash" db:"terms_hash"`
	Metodo            types.TermsMethod `json:"metodo" db:"metodo"`
	CheckoutSessionID *string           `json:"checkout_session_id,omitempty" db:"checkout_session_id"`
	Consentido        bool              `json:"consentido" db:"consentido"`
	HMACAssinatura    *string           `json:"hmac_assinatura,omitempty" db:"hmac_assinatura"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
}
