package repository

import (
	"time"

	"github.com/ManuelReschke/ClipFox/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	TouchAPIKeyUsage(userID uint, usedAt time.Time) error
	Count() (int64, error)
}

// GenerationJobRepository defines the interface for generation job operations
type GenerationJobRepository interface {
	Create(job *models.GenerationJob) error
	GetByID(id uint) (*models.GenerationJob, error)
	GetByUUID(uuid string) (*models.GenerationJob, error)
	GetByUserID(userID uint, offset, limit int) ([]models.GenerationJob, error)
	Update(job *models.GenerationJob) error
	CountActiveByUser(userID uint) (int64, error)
	ListActive(limit int) ([]models.GenerationJob, error)
	TransitionStatus(id uint, fromStatuses []string, updates map[string]interface{}) (bool, error)
	Count() (int64, error)
	CountByStatus(status string) (int64, error)
}

// SubscriptionRepository defines the interface for subscription operations
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	GetActiveByUserID(userID uint) (*models.Subscription, error)
	ListByUserID(userID uint) ([]models.Subscription, error)
	ListActiveYearly() ([]models.Subscription, error)
	Update(sub *models.Subscription) error
}
