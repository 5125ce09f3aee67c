package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
)

// UserRepository handles database operations for users and their visibility
// policies (restriction rules, explicit hides)
type UserRepository struct {
	DB *gorm.DB
}

// NewUserRepository creates a new instance of UserRepository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

// Create creates a new user record
func (r *UserRepository) Create(user *models.User) error {
	now := time.Now().Unix()
	if user.CreatedAt == 0 {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if err := r.DB.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Username, err)
	}
	return nil
}

// GetByID retrieves a user by its ID
func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.DB.First(&user, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user by ID %d: %w", id, err)
	}
	return &user, nil
}

// ListAllIDs returns every user id, for all-user recompute passes.
func (r *UserRepository) ListAllIDs() ([]uint, error) {
	var ids []uint
	if err := r.DB.Model(&models.User{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	return ids, nil
}

// ListIDsWithVisibilityPolicies returns users that have at least one active
// restriction rule or explicit hide, i.e. users whose exclusion tables can be
// non-empty and need recomputing after a sync.
func (r *UserRepository) ListIDsWithVisibilityPolicies() ([]uint, error) {
	seen := make(map[uint]struct{})
	var out []uint

	var ruleUsers []uint
	err := r.DB.Model(&models.RestrictionRule{}).
		Where("mode != ? OR restrict_empty = ?", models.RestrictionModeNone, true).
		Distinct().Pluck("user_id", &ruleUsers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users with restriction rules: %w", err)
	}
	var hideUsers []uint
	err = r.DB.Model(&models.HiddenEntity{}).Distinct().Pluck("user_id", &hideUsers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users with hidden entities: %w", err)
	}
	for _, id := range append(ruleUsers, hideUsers...) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, nil
}

// GetRestrictionRules returns every restriction rule for one user.
func (r *UserRepository) GetRestrictionRules(userID uint) ([]models.RestrictionRule, error) {
	var rules []models.RestrictionRule
	err := r.DB.Where("user_id = ?", userID).Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get restriction rules for user %d: %w", userID, err)
	}
	return rules, nil
}

// SetRestrictionRule creates or replaces one user's rule for a (target type,
// mode) pair. An include rule and an exclude rule may be active on the same
// target type at once; setting mode none clears every rule for the target
// type and stores the none rule in their place (so restrict-empty can still
// be carried without a list).
func (r *UserRepository) SetRestrictionRule(rule *models.RestrictionRule) error {
	if !models.IsRestrictableType(models.EntityType(rule.TargetType)) {
		return fmt.Errorf("entity type %s cannot carry restriction rules", rule.TargetType)
	}
	if !models.IsValidRestrictionMode(rule.Mode) {
		return fmt.Errorf("invalid restriction mode %q", rule.Mode)
	}
	now := time.Now().Unix()
	rule.UpdatedAt = now

	return r.DB.Transaction(func(tx *gorm.DB) error {
		if rule.Mode == models.RestrictionModeNone {
			err := tx.Where("user_id = ? AND target_type = ?", rule.UserID, rule.TargetType).
				Delete(&models.RestrictionRule{}).Error
			if err != nil {
				return fmt.Errorf("failed to clear restriction rules: %w", err)
			}
			rule.ID = 0
			rule.CreatedAt = now
			if createErr := tx.Create(rule).Error; createErr != nil {
				return fmt.Errorf("failed to create restriction rule: %w", createErr)
			}
			return nil
		}

		// a fresh include or exclude list retires any stored none rule
		if delErr := tx.Where("user_id = ? AND target_type = ? AND mode = ?",
			rule.UserID, rule.TargetType, models.RestrictionModeNone).
			Delete(&models.RestrictionRule{}).Error; delErr != nil {
			return fmt.Errorf("failed to retire none rule: %w", delErr)
		}

		var existing models.RestrictionRule
		err := tx.Where("user_id = ? AND target_type = ? AND mode = ?",
			rule.UserID, rule.TargetType, rule.Mode).
			First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			rule.CreatedAt = now
			if createErr := tx.Create(rule).Error; createErr != nil {
				return fmt.Errorf("failed to create restriction rule: %w", createErr)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up restriction rule: %w", err)
		}

		rule.ID = existing.ID
		rule.CreatedAt = existing.CreatedAt
		if saveErr := tx.Save(rule).Error; saveErr != nil {
			return fmt.Errorf("failed to update restriction rule: %w", saveErr)
		}
		return nil
	})
}

// GetHiddenEntities returns one user's explicit hides for one entity type.
func (r *UserRepository) GetHiddenEntities(userID uint, entityType models.EntityType) ([]models.HiddenEntity, error) {
	var hidden []models.HiddenEntity
	err := r.DB.Where("user_id = ? AND entity_type = ?", userID, string(entityType)).
		Find(&hidden).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get hidden entities for user %d: %w", userID, err)
	}
	return hidden, nil
}

// HideEntity records an explicit hide marker for one user.
func (r *UserRepository) HideEntity(h *models.HiddenEntity) error {
	if h.CreatedAt == 0 {
		h.CreatedAt = time.Now().Unix()
	}
	if err := r.DB.Create(h).Error; err != nil {
		return fmt.Errorf("failed to hide entity: %w", err)
	}
	return nil
}
