package models

import "time"

type Division struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"type:varchar(200);not null"`
	ParentID  *uint     `gorm:"index"`
	Parent    *Division `gorm:"foreignKey:ParentID;references:ID"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// DivisionUserCount is a read-only projection; it has no table.
type DivisionUserCount struct {
	ID        uint
	Name      string
	ParentID  *uint
	CreatedAt time.Time
	UserCount int64
}
