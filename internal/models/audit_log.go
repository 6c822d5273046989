package models

import (
	"time"

	"gorm.io/gorm"
)

type AuditLog struct {
	ID           uint                   `json:"id" gorm:"primaryKey"`
	ActorKind    string                 `json:"actorKind,omitempty" gorm:"type:varchar(20);index"`
	ActorID      *uint                  `json:"actorID,omitempty" gorm:"index"`
	Action       string                 `json:"action" gorm:"type:varchar(50);not null;index"`
	ResourceType string                 `json:"resourceType" gorm:"type:varchar(30);not null;index"`
	ResourceID   *uint                  `json:"resourceID,omitempty" gorm:"index"`
	Details      map[string]interface{} `json:"details,omitempty" gorm:"type:jsonb;serializer:json"`
	IPAddress    string                 `json:"ipAddress" gorm:"type:varchar(45);not null"`
	RequestID    string                 `json:"requestID,omitempty" gorm:"type:varchar(36)"`
	CreatedAt    time.Time              `json:"createdAt" gorm:"not null;index"`
}

func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// AuditExportCursor tracks the last successful export timestamp so the
// periodic blob-store export only ships new rows.
type AuditExportCursor struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	LastExportAt  time.Time `json:"lastExportAt" gorm:"not null"`
	ExportedCount int64     `json:"exportedCount" gorm:"not null;default:0"`
}

func (AuditExportCursor) TableName() string {
	return "audit_export_cursors"
}
