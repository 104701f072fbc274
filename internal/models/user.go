package models

import "time"

type User struct {
	ID         uint      `gorm:"primaryKey"`
	Name       string    `gorm:"type:varchar(200);not null"`
	DivisionID *uint     `gorm:"index"`
	Division   *Division `gorm:"foreignKey:DivisionID"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}
