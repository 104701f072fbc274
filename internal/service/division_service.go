package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"division-service/internal/apperror"
	"division-service/internal/hierarchy"
	"division-service/internal/metrics"
	"division-service/internal/models"
	"division-service/internal/repository"
)

type DivisionService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewDivisionService(store repository.Store, logger *zap.Logger) *DivisionService {
	return &DivisionService{
		store:  store,
		logger: logger.Named("divisions"),
	}
}

func (s *DivisionService) AddDivision(ctx context.Context, input CreateDivisionInput) (DivisionDTO, error) {
	name, err := normalizeRequiredString(input.Name, "name")
	if err != nil {
		return DivisionDTO{}, err
	}

	if input.ParentID != nil {
		if err := ensureDivisionExists(ctx, s.store, *input.ParentID, "parent division not found"); err != nil {
			return DivisionDTO{}, err
		}
	}

	division := models.Division{
		Name:     name,
		ParentID: input.ParentID,
	}

	if err := s.store.Create(ctx, &division); err != nil {
		return DivisionDTO{}, apperror.Persistence(err, "failed to create division %q", name)
	}

	s.logger.Info("division created", zap.Uint("id", division.ID), zap.Uintp("parent_id", division.ParentID))
	return divisionToDTO(division), nil
}

// GetDivisionByID returns nil without an error when the division does not exist.
func (s *DivisionService) GetDivisionByID(ctx context.Context, divisionID uint) (*DivisionDTO, error) {
	division, err := s.store.FindByID(ctx, divisionID)
	if err != nil {
		return nil, apperror.Persistence(err, "failed to load division with id %d", divisionID)
	}
	if division == nil {
		return nil, nil
	}

	dto := divisionToDTO(*division)
	return &dto, nil
}

func (s *DivisionService) GetDivisionsHierarchy(ctx context.Context) ([]*hierarchy.DivisionNode, error) {
	divisions, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, apperror.Persistence(err, "failed to load divisions")
	}

	forest := hierarchy.BuildHierarchy(divisions)
	if hidden := len(divisions) - hierarchy.CountNodes(forest); hidden > 0 {
		s.logger.Warn("divisions with dangling or cyclic parent references left out of hierarchy",
			zap.Int("hidden", hidden))
	}
	return forest, nil
}

// GetDivisionSubtree returns divisionID with at most depth levels below it.
// The division is treated as a root, so it resolves even when its own
// ancestors are broken.
func (s *DivisionService) GetDivisionSubtree(ctx context.Context, divisionID uint, depth int) (*hierarchy.DivisionNode, error) {
	if depth < 0 || depth > MaxSubtreeDepth {
		return nil, apperror.New(apperror.CodeValidation, fmt.Sprintf("depth must be between 0 and %d", MaxSubtreeDepth))
	}

	divisions, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, apperror.Persistence(err, "failed to load divisions")
	}

	var parentID *uint
	found := false
	for i := range divisions {
		if divisions[i].ID == divisionID {
			parentID = divisions[i].ParentID
			divisions[i].ParentID = nil
			found = true
			break
		}
	}
	if !found {
		return nil, apperror.New(apperror.CodeNotFound, "division not found")
	}

	subtree := hierarchy.Truncate(hierarchy.Find(hierarchy.BuildHierarchy(divisions), divisionID), depth)
	subtree.ParentID = parentID
	return subtree, nil
}

func (s *DivisionService) GetDivisionsWithUserCount(ctx context.Context) ([]DivisionWithUserCountDTO, error) {
	rows, err := s.store.DivisionsWithUserCount(ctx)
	if err != nil {
		return nil, apperror.Persistence(err, "failed to count users per division")
	}

	return lo.Map(rows, func(row models.DivisionUserCount, _ int) DivisionWithUserCountDTO {
		return DivisionWithUserCountDTO{
			DivisionDTO: DivisionDTO{
				ID:        row.ID,
				Name:      row.Name,
				ParentID:  row.ParentID,
				CreatedAt: row.CreatedAt,
			},
			UserCount: row.UserCount,
		}
	}), nil
}

// UpdateDivision renames and/or reparents a division. Every check runs inside
// the write transaction; on postgres reparents also hold the hierarchy lock,
// so two concurrent moves cannot each pass a cycle check against stale rows.
func (s *DivisionService) UpdateDivision(ctx context.Context, divisionID uint, input UpdateDivisionInput) (DivisionDTO, error) {
	reparent := input.ParentIDSet && input.ParentID != nil

	var updated *models.Division
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if reparent {
			if err := tx.LockHierarchy(ctx); err != nil {
				return err
			}
		}

		division, err := tx.FindByID(ctx, divisionID)
		if err != nil {
			return err
		}
		if division == nil {
			return apperror.New(apperror.CodeNotFound, "division not found")
		}

		updates := map[string]interface{}{}
		if input.Name != nil {
			name, err := normalizeRequiredString(*input.Name, "name")
			if err != nil {
				return err
			}
			if name != division.Name {
				updates["name"] = name
			}
		}

		if input.ParentIDSet {
			if reparent {
				if *input.ParentID == divisionID {
					return apperror.New(apperror.CodeValidation, "division cannot be its own parent")
				}
				if err := ensureDivisionExists(ctx, tx, *input.ParentID, "parent division not found"); err != nil {
					return err
				}
				if err := checkCycle(ctx, tx, divisionID, *input.ParentID); err != nil {
					return err
				}
			}
			if !equalUintPtr(division.ParentID, input.ParentID) {
				updates["parent_id"] = input.ParentID
			}
		}

		if len(updates) == 0 {
			updated = division
			return nil
		}

		updated, err = tx.UpdateFields(ctx, divisionID, updates)
		return err
	})
	if err != nil {
		return DivisionDTO{}, apperror.Persistence(err, "failed to update division with id %d", divisionID)
	}

	s.logger.Info("division updated", zap.Uint("id", updated.ID), zap.Uintp("parent_id", updated.ParentID))
	return divisionToDTO(*updated), nil
}

// DeleteDivision removes a division and its whole subtree, detaching every
// user that pointed into it. It reports false when the division does not exist.
func (s *DivisionService) DeleteDivision(ctx context.Context, divisionID uint) (bool, error) {
	division, err := s.store.FindByID(ctx, divisionID)
	if err != nil {
		metrics.CascadeDeletes.WithLabelValues("error").Inc()
		return false, apperror.Persistence(err, "failed to delete division with id %d", divisionID)
	}
	if division == nil {
		metrics.CascadeDeletes.WithLabelValues("not_found").Inc()
		return false, nil
	}

	var affected []uint
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.LockHierarchy(ctx); err != nil {
			return err
		}

		total, err := tx.CountDivisions(ctx)
		if err != nil {
			return err
		}
		descendants, err := hierarchy.CollectDescendants(ctx, divisionID, tx.FindChildIDs, total)
		if err != nil {
			return err
		}
		affected = lo.Uniq(append([]uint{divisionID}, descendants...))

		// users first: user.division_id references the rows deleted below
		if err := tx.NullifyDivisionForIDs(ctx, affected); err != nil {
			return err
		}
		return tx.DeleteMany(ctx, affected)
	})
	if err != nil {
		metrics.CascadeDeletes.WithLabelValues("error").Inc()
		return false, apperror.Persistence(err, "failed to delete division with id %d", divisionID)
	}

	metrics.CascadeDeletes.WithLabelValues("ok").Inc()
	metrics.DivisionsDeleted.Add(float64(len(affected)))
	s.logger.Info("division deleted", zap.Uint("id", divisionID), zap.Int("removed", len(affected)))
	return true, nil
}

func (s *DivisionService) CreateUser(ctx context.Context, input CreateUserInput) (UserDTO, error) {
	name, err := normalizeRequiredString(input.Name, "name")
	if err != nil {
		return UserDTO{}, err
	}

	if input.DivisionID != nil {
		if err := ensureDivisionExists(ctx, s.store, *input.DivisionID, "division not found"); err != nil {
			return UserDTO{}, err
		}
	}

	user := models.User{
		Name:       name,
		DivisionID: input.DivisionID,
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		return UserDTO{}, apperror.Persistence(err, "failed to create user %q", name)
	}

	return userToDTO(user), nil
}

func (s *DivisionService) GetUser(ctx context.Context, userID uint) (UserDTO, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return UserDTO{}, apperror.Persistence(err, "failed to load user with id %d", userID)
	}
	if user == nil {
		return UserDTO{}, apperror.New(apperror.CodeNotFound, "user not found")
	}
	return userToDTO(*user), nil
}

// checkCycle rejects moving divisionID under newParentID when newParentID is
// currently one of its descendants.
func checkCycle(ctx context.Context, store repository.Store, divisionID, newParentID uint) error {
	total, err := store.CountDivisions(ctx)
	if err != nil {
		return err
	}
	cyclic, err := hierarchy.WouldCreateCycle(ctx, newParentID, divisionID, store.FindParentID, total)
	if err != nil {
		return err
	}
	if cyclic {
		return apperror.New(apperror.CodeCycle, "would create a cycle")
	}
	return nil
}

func ensureDivisionExists(ctx context.Context, store repository.Store, divisionID uint, notFoundMessage string) error {
	division, err := store.FindByID(ctx, divisionID)
	if err != nil {
		return apperror.Persistence(err, "failed to check division with id %d", divisionID)
	}
	if division == nil {
		return apperror.New(apperror.CodeNotFound, notFoundMessage)
	}
	return nil
}

func divisionToDTO(division models.Division) DivisionDTO {
	return DivisionDTO{
		ID:        division.ID,
		Name:      division.Name,
		ParentID:  division.ParentID,
		CreatedAt: division.CreatedAt,
	}
}

func userToDTO(user models.User) UserDTO {
	return UserDTO{
		ID:         user.ID,
		Name:       user.Name,
		DivisionID: user.DivisionID,
		CreatedAt:  user.CreatedAt,
	}
}

func normalizeRequiredString(raw string, field string) (string, error) {
	value := strings.TrimSpace(raw)
	length := utf8.RuneCountInString(value)
	if length < 1 || length > 200 {
		return "", apperror.New(apperror.CodeValidation, fmt.Sprintf("%s length must be in range 1..200", field))
	}
	return value, nil
}

func equalUintPtr(a *uint, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
