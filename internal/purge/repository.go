package purge

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/pagination"
)

// Repository persists purge reports and the per-account month markers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRun(ctx context.Context, run *models.PurgeRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.PurgeRun, error)
	ListRuns(ctx context.Context, params pagination.Params) ([]models.PurgeRun, string, error)
	InsertMarker(ctx context.Context, marker *models.PurgeMarker) error
	HasMarker(ctx context.Context, accountID uuid.UUID, year, month int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateRun stores the run header together with its detail rows.
func (r *repository) CreateRun(ctx context.Context, run *models.PurgeRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *repository) GetRun(ctx context.Context, id uuid.UUID) (*models.PurgeRun, error) {
	var run models.PurgeRun
	err := r.db.WithContext(ctx).
		Preload("Details").
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns pages run headers newest first. Details are fetched per run.
func (r *repository) ListRuns(ctx context.Context, params pagination.Params) ([]models.PurgeRun, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.PurgeRun{}).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var runs []models.PurgeRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(runs) > limit {
		runs = runs[:limit]
		last := runs[len(runs)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return runs, next, nil
}

func (r *repository) InsertMarker(ctx context.Context, marker *models.PurgeMarker) error {
	return r.db.WithContext(ctx).Create(marker).Error
}

func (r *repository) HasMarker(ctx context.Context, accountID uuid.UUID, year, month int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PurgeMarker{}).
		Where("account_id = ? AND year = ? AND month = ?", accountID, year, month).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
