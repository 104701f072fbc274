package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"division-service/internal/apperror"
	"division-service/internal/models"
)

// hierarchyLockKey identifies the postgres advisory lock that serializes
// reparent operations.
const hierarchyLockKey int64 = 0x64697669

type Store interface {
	FindByID(ctx context.Context, id uint) (*models.Division, error)
	FindParentID(ctx context.Context, id uint) (*uint, bool, error)
	FindAll(ctx context.Context) ([]models.Division, error)
	FindChildIDs(ctx context.Context, parentIDs []uint) ([]uint, error)
	CountDivisions(ctx context.Context) (int64, error)
	Create(ctx context.Context, division *models.Division) error
	UpdateFields(ctx context.Context, id uint, updates map[string]interface{}) (*models.Division, error)
	DeleteMany(ctx context.Context, ids []uint) error
	DivisionsWithUserCount(ctx context.Context) ([]models.DivisionUserCount, error)

	NullifyDivisionForIDs(ctx context.Context, ids []uint) error
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id uint) (*models.User, error)

	// LockHierarchy blocks concurrent hierarchy writers until the surrounding
	// transaction ends. It is a no-op on drivers without advisory locks.
	LockHierarchy(ctx context.Context) error
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindByID(ctx context.Context, id uint) (*models.Division, error) {
	var division models.Division
	if err := s.db.WithContext(ctx).First(&division, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, mapDatabaseError(err)
	}
	return &division, nil
}

func (s *GormStore) FindParentID(ctx context.Context, id uint) (*uint, bool, error) {
	var division models.Division
	if err := s.db.WithContext(ctx).
		Select("id", "parent_id").
		First(&division, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, mapDatabaseError(err)
	}
	return division.ParentID, true, nil
}

func (s *GormStore) FindAll(ctx context.Context) ([]models.Division, error) {
	var divisions []models.Division
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&divisions).Error; err != nil {
		return nil, mapDatabaseError(err)
	}
	return divisions, nil
}

func (s *GormStore) FindChildIDs(ctx context.Context, parentIDs []uint) ([]uint, error) {
	ids := make([]uint, 0)
	if len(parentIDs) == 0 {
		return ids, nil
	}
	if err := s.db.WithContext(ctx).
		Model(&models.Division{}).
		Where("parent_id IN ?", parentIDs).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, mapDatabaseError(err)
	}
	return ids, nil
}

func (s *GormStore) CountDivisions(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Division{}).Count(&count).Error; err != nil {
		return 0, mapDatabaseError(err)
	}
	return count, nil
}

func (s *GormStore) Create(ctx context.Context, division *models.Division) error {
	return mapDatabaseError(s.db.WithContext(ctx).Create(division).Error)
}

func (s *GormStore) UpdateFields(ctx context.Context, id uint, updates map[string]interface{}) (*models.Division, error) {
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).
			Model(&models.Division{}).
			Where("id = ?", id).
			Updates(updates).Error; err != nil {
			return nil, mapDatabaseError(err)
		}
	}

	var division models.Division
	if err := s.db.WithContext(ctx).First(&division, id).Error; err != nil {
		return nil, mapDatabaseError(err)
	}
	return &division, nil
}

func (s *GormStore) DeleteMany(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return mapDatabaseError(s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&models.Division{}).Error)
}

func (s *GormStore) DivisionsWithUserCount(ctx context.Context) ([]models.DivisionUserCount, error) {
	var rows []models.DivisionUserCount
	if err := s.db.WithContext(ctx).
		Model(&models.Division{}).
		Select("divisions.id, divisions.name, divisions.parent_id, divisions.created_at, COUNT(users.id) AS user_count").
		Joins("LEFT JOIN users ON users.division_id = divisions.id").
		Group("divisions.id, divisions.name, divisions.parent_id, divisions.created_at").
		Order("divisions.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, mapDatabaseError(err)
	}
	return rows, nil
}

func (s *GormStore) NullifyDivisionForIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return mapDatabaseError(s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("division_id IN ?", ids).
		Update("division_id", nil).Error)
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	return mapDatabaseError(s.db.WithContext(ctx).Create(user).Error)
}

func (s *GormStore) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, mapDatabaseError(err)
	}
	return &user, nil
}

func (s *GormStore) LockHierarchy(ctx context.Context) error {
	if s.db.Dialector.Name() != "postgres" {
		return nil
	}
	return mapDatabaseError(s.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(?)", hierarchyLockKey).Error)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func mapDatabaseError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return apperror.Wrap(apperror.CodeConflict, err, "resource with the same unique attributes already exists")
		}
		if pgErr.Code == "23503" {
			return apperror.Wrap(apperror.CodeValidation, err, "invalid foreign key reference")
		}
	}
	return err
}
