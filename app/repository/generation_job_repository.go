package repository

import (
	"github.com/ManuelReschke/ClipFox/app/models"
	"gorm.io/gorm"
)

// generationJobRepository implements the GenerationJobRepository interface
type generationJobRepository struct {
	db *gorm.DB
}

// NewGenerationJobRepository creates a new generation job repository instance
func NewGenerationJobRepository(db *gorm.DB) GenerationJobRepository {
	return &generationJobRepository{db: db}
}

func (r *generationJobRepository) Create(job *models.GenerationJob) error {
	return r.db.Create(job).Error
}

func (r *generationJobRepository) GetByID(id uint) (*models.GenerationJob, error) {
	var job models.GenerationJob
	err := r.db.First(&job, id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *generationJobRepository) GetByUUID(uuid string) (*models.GenerationJob, error) {
	var job models.GenerationJob
	err := r.db.Where("uuid = ?", uuid).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *generationJobRepository) GetByUserID(userID uint, offset, limit int) ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *generationJobRepository) Update(job *models.GenerationJob) error {
	return r.db.Save(job).Error
}

// CountActiveByUser counts a user's non-terminal jobs; the admission check
// compares this against the tier cap.
func (r *generationJobRepository) CountActiveByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.GenerationJob{}).
		Where("user_id = ? AND status IN ?", userID, models.ActiveJobStatuses()).
		Count(&count).Error
	return count, err
}

// ListActive returns the current snapshot of non-terminal jobs, oldest first.
func (r *generationJobRepository) ListActive(limit int) ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	q := r.db.Where("status IN ?", models.ActiveJobStatuses()).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

// TransitionStatus applies updates only while the job is still in one of the
// given states. Returns false when another writer already moved the job on;
// this guarded write is the synchronization point for concurrent pollers.
func (r *generationJobRepository) TransitionStatus(id uint, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	tx := r.db.Model(&models.GenerationJob{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *generationJobRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.GenerationJob{}).Count(&count).Error
	return count, err
}

func (r *generationJobRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.GenerationJob{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
