package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gridironlabs/ffpipeline/internal/models"
)

// RegistryStore is the model registry: immutable bundle records plus the
// single production pointer, which only Promote writes.
type RegistryStore interface {
	Register(rec *models.ModelRecord) error
	Latest() (*models.ModelRecord, error)
	Production() (*models.ModelRecord, error)
	Promote(modelID string, season, week int) error
}

// GormRegistry implements RegistryStore on the relational store.
type GormRegistry struct {
	db *gorm.DB
}

func NewGormRegistry(db *gorm.DB) *GormRegistry {
	return &GormRegistry{db: db}
}

func (r *GormRegistry) Register(rec *models.ModelRecord) error {
	if err := r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to register model %s: %w", rec.ModelID, err)
	}
	return nil
}

func (r *GormRegistry) Latest() (*models.ModelRecord, error) {
	var rec models.ModelRecord
	err := r.db.Order("created_at DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest model: %w", err)
	}
	return &rec, nil
}

func (r *GormRegistry) Production() (*models.ModelRecord, error) {
	var pointer models.ProductionPointer
	err := r.db.First(&pointer, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query production pointer: %w", err)
	}

	var rec models.ModelRecord
	err = r.db.First(&rec, "model_id = ?", pointer.ModelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Dangling pointer; treat as no production model
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query production model: %w", err)
	}
	return &rec, nil
}

// Promote makes modelID the single production model. The pointer is one row,
// so replacing it demotes everything else in the same write.
func (r *GormRegistry) Promote(modelID string, season, week int) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var rec models.ModelRecord
		if err := tx.First(&rec, "model_id = ?", modelID).Error; err != nil {
			return fmt.Errorf("cannot promote unknown model %s: %w", modelID, err)
		}
		pointer := models.ProductionPointer{
			ID:         1,
			ModelID:    modelID,
			ProdSeason: season,
			ProdWeek:   week,
			UpdatedAt:  time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&pointer).Error; err != nil {
			return fmt.Errorf("failed to update production pointer: %w", err)
		}
		return nil
	})
}
