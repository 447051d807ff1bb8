package models

import (
	"time"
)

// Base model fields shared by all entities. Every entity is tenant scoped
// and soft-deleted via the Active flag; rows are never hard-deleted so
// referential history survives.
type Base struct {
	UUID      string    `json:"uuid" gorm:"type:uuid;primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:uuid;index"`
	Active    bool      `json:"active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
