package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/bridgesync/backend/internal/domain/sync"
	"github.com/bridgesync/backend/internal/infrastructure/persistence/models"
)

// GormSyncedProductRepository implements sync.StateRepository using GORM
type GormSyncedProductRepository struct {
	db *gorm.DB
}

var _ sync.StateRepository = (*GormSyncedProductRepository)(nil)

// NewGormSyncedProductRepository creates a new GormSyncedProductRepository
func NewGormSyncedProductRepository(db *gorm.DB) *GormSyncedProductRepository {
	return &GormSyncedProductRepository{db: db}
}

// FindByExternalID finds sync state by external product ID
func (r *GormSyncedProductRepository) FindByExternalID(ctx context.Context, externalID string) (*sync.SyncedProduct, error) {
	if externalID == "" {
		return nil, sync.ErrInvalidExternalID
	}

	var model models.SyncedProductModel
	if err := r.db.WithContext(ctx).First(&model, "external_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrStateNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// UpsertAttempt registers a reconciliation attempt for the external ID
// inside one transaction: the row is created as PENDING when absent, the
// attempt counter and source snapshot are applied, and the result is
// persisted. Feed rows are deduplicated upstream, so two workers never
// race on the same external ID within a batch.
func (r *GormSyncedProductRepository) UpsertAttempt(ctx context.Context, externalID string, snapshot sync.Snapshot) (*sync.SyncedProduct, error) {
	if externalID == "" {
		return nil, sync.ErrInvalidExternalID
	}

	var product *sync.SyncedProduct
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.SyncedProductModel
		err := tx.First(&model, "external_id = ?", externalID).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			fresh, newErr := sync.NewSyncedProduct(externalID)
			if newErr != nil {
				return newErr
			}
			product = fresh
		case err != nil:
			return err
		default:
			product = model.ToDomain()
		}

		product.RecordAttempt(snapshot)
		model.FromDomain(product)
		return tx.Save(&model).Error
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// Save persists the current entity state
func (r *GormSyncedProductRepository) Save(ctx context.Context, product *sync.SyncedProduct) error {
	if product == nil || product.ExternalID == "" {
		return sync.ErrInvalidExternalID
	}
	model := models.SyncedProductModelFromDomain(product)
	return r.db.WithContext(ctx).Save(model).Error
}

// CountByStatus returns the number of rows per reconciliation status.
func (r *GormSyncedProductRepository) CountByStatus(ctx context.Context) (map[sync.Status]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&models.SyncedProductModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[sync.Status]int64, len(rows))
	for _, r := range rows {
		counts[sync.Status(r.Status)] = r.Count
	}
	return counts, nil
}
