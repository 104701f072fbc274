package service

import (
	"context"
	"time"

	"division-service/internal/hierarchy"
)

const MaxSubtreeDepth = 5

type CreateDivisionInput struct {
	Name     string
	ParentID *uint
}

// UpdateDivisionInput leaves a field untouched when it is nil. ParentIDSet
// distinguishes "detach" (set, nil) from "keep parent" (not set).
type UpdateDivisionInput struct {
	Name        *string
	ParentIDSet bool
	ParentID    *uint
}

type CreateUserInput struct {
	Name       string
	DivisionID *uint
}

type DivisionDTO struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	ParentID  *uint     `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
}

type DivisionWithUserCountDTO struct {
	DivisionDTO
	UserCount int64 `json:"user_count"`
}

type UserDTO struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	DivisionID *uint     `json:"division_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type Manager interface {
	AddDivision(ctx context.Context, input CreateDivisionInput) (DivisionDTO, error)
	GetDivisionByID(ctx context.Context, divisionID uint) (*DivisionDTO, error)
	GetDivisionSubtree(ctx context.Context, divisionID uint, depth int) (*hierarchy.DivisionNode, error)
	GetDivisionsHierarchy(ctx context.Context) ([]*hierarchy.DivisionNode, error)
	GetDivisionsWithUserCount(ctx context.Context) ([]DivisionWithUserCountDTO, error)
	UpdateDivision(ctx context.Context, divisionID uint, input UpdateDivisionInput) (DivisionDTO, error)
	DeleteDivision(ctx context.Context, divisionID uint) (bool, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserDTO, error)
	GetUser(ctx context.Context, userID uint) (UserDTO, error)
}
