package models

import (
	"time"
)

// Audit actions
const (
	AuditTermsAccepted  = "ACEITE_TERMS"
	AuditProfileUpdated = "PERFIL_ATUALIZADO"
	AuditDataExported   = "DADOS_EXPORTADOS"
	AuditAccountDeleted = "CONTA_EXCLUIDA"
)

// AuditLog is a best-effort audit trail entry
type AuditLog struct {
	ID        string                 `json:"id" db:"id"`
	UserID    *string                `json:"user_id,omitempty" db:"user_id"`
	Acao      string                 `json:"acao" db:"acao"`
	Detalhes  map[string]interface{} `json:"detalhes,omitempty" db:"detalhes"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
