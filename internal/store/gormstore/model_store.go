package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"getrader/internal/registry"
	storemodel "getrader/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var _ registry.Store = (*GormStore)(nil)

func (s *GormStore) SaveModel(ctx context.Context, m registry.ModelMetadata) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	row, err := newModelMetadataModel(m)
	if err != nil {
		return err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&modelMetadataModel{}).Where("model_id = ?", row.ModelID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", registry.ErrModelExists, row.ModelID)
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) GetModel(ctx context.Context, id string) (registry.ModelMetadata, error) {
	if s == nil || s.db == nil {
		return registry.ModelMetadata{}, fmt.Errorf("gorm store 未初始化")
	}
	var row modelMetadataModel
	err := s.db.WithContext(ctx).Where("model_id = ?", strings.TrimSpace(id)).First(&row).Error
	if err != nil {
		if isNotFound(err) {
			return registry.ModelMetadata{}, fmt.Errorf("%w: %s", registry.ErrModelNotFound, id)
		}
		return registry.ModelMetadata{}, err
	}
	return modelMetadataToRecord(row)
}

// UpdateModel rewrites the descriptive columns of an existing model.
// status, promoted_at and archived_at are left to PromoteModel and
// ArchiveModel.
func (s *GormStore) UpdateModel(ctx context.Context, m registry.ModelMetadata) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	row, err := newModelMetadataModel(m)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&modelMetadataModel{}).
		Where("model_id = ?", row.ModelID).
		Select("version", "description", "training_date", "roi",
			"performance_json", "technical_json", "usage_json", "updated_at").
		Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", registry.ErrModelNotFound, row.ModelID)
	}
	return nil
}

// IncrementUsage adds to the usage counters inside one transaction and
// writes only usage_json and updated_at.
func (s *GormStore) IncrementUsage(ctx context.Context, id string, predictions int64, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	id = strings.TrimSpace(id)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row modelMetadataModel
		if err := tx.Select("model_id", "usage_json").Where("model_id = ?", id).First(&row).Error; err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: %s", registry.ErrModelNotFound, id)
			}
			return err
		}
		var usage registry.UsageStats
		if len(row.UsageJSON) > 0 {
			if err := json.Unmarshal(row.UsageJSON, &usage); err != nil {
				return fmt.Errorf("decode usage of %s: %w", id, err)
			}
		}
		used := at
		usage.Predictions += predictions
		usage.Sessions++
		usage.LastUsedAt = &used
		raw, err := json.Marshal(usage)
		if err != nil {
			return err
		}
		return tx.Model(&modelMetadataModel{}).
			Where("model_id = ?", id).
			Updates(map[string]interface{}{
				"usage_json": datatypes.JSON(raw),
				"updated_at": at.UnixMilli(),
			}).Error
	})
}

func (s *GormStore) ArchiveModel(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	ms := at.UnixMilli()
	res := s.db.WithContext(ctx).Model(&modelMetadataModel{}).
		Where("model_id = ?", strings.TrimSpace(id)).
		Updates(map[string]interface{}{
			"status":      registry.StatusArchived,
			"archived_at": ms,
			"updated_at":  ms,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", registry.ErrModelNotFound, id)
	}
	return nil
}

func (s *GormStore) DeleteModel(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	res := s.db.WithContext(ctx).Where("model_id = ?", id).Delete(&modelMetadataModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", registry.ErrModelNotFound, id)
	}
	return nil
}

func (s *GormStore) GetProductionModel(ctx context.Context) (registry.ModelMetadata, error) {
	if s == nil || s.db == nil {
		return registry.ModelMetadata{}, fmt.Errorf("gorm store 未初始化")
	}
	var row modelMetadataModel
	err := s.db.WithContext(ctx).
		Where("status = ?", registry.StatusProduction).
		Order("promoted_at DESC").
		First(&row).Error
	if err != nil {
		if isNotFound(err) {
			return registry.ModelMetadata{}, fmt.Errorf("%w: no production model", registry.ErrModelNotFound)
		}
		return registry.ModelMetadata{}, err
	}
	return modelMetadataToRecord(row)
}

func (s *GormStore) GetRecentModels(ctx context.Context, limit int) ([]registry.ModelMetadata, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	q := s.db.WithContext(ctx).Order("created_at DESC, model_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []modelMetadataModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return modelRowsToRecords(rows)
}

func (s *GormStore) GetModelsByPerformance(ctx context.Context, minROI float64) ([]registry.ModelMetadata, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var rows []modelMetadataModel
	if err := s.db.WithContext(ctx).Where("roi >= ?", minROI).Order("roi DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return modelRowsToRecords(rows)
}

// PromoteModel archives every production row and promotes id in one
// transaction.
func (s *GormStore) PromoteModel(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	ms := at.UnixMilli()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&modelMetadataModel{}).Where("model_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", registry.ErrModelNotFound, id)
		}
		if err := tx.Model(&modelMetadataModel{}).
			Where("status = ? AND model_id <> ?", registry.StatusProduction, id).
			Updates(map[string]interface{}{
				"status":      registry.StatusArchived,
				"archived_at": ms,
				"updated_at":  ms,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&modelMetadataModel{}).
			Where("model_id = ?", id).
			Updates(map[string]interface{}{
				"status":      registry.StatusProduction,
				"promoted_at": ms,
				"archived_at": 0,
				"updated_at":  ms,
			}).Error
	})
}

func newModelMetadataModel(m registry.ModelMetadata) (modelMetadataModel, error) {
	if strings.TrimSpace(m.ModelID) == "" {
		return modelMetadataModel{}, fmt.Errorf("model_id 必填")
	}
	perf, err := json.Marshal(m.Performance)
	if err != nil {
		return modelMetadataModel{}, err
	}
	tech, err := json.Marshal(m.Technical)
	if err != nil {
		return modelMetadataModel{}, err
	}
	usage, err := json.Marshal(m.Usage)
	if err != nil {
		return modelMetadataModel{}, err
	}
	return modelMetadataModel{
		ModelID:         strings.TrimSpace(m.ModelID),
		Version:         m.Version,
		Description:     m.Description,
		TrainingDateMs:  timeToMillis(m.TrainingDate),
		Status:          storemodel.ModelStatus(m.Status),
		ROI:             m.Performance.ROI,
		PerformanceJSON: datatypes.JSON(perf),
		TechnicalJSON:   datatypes.JSON(tech),
		UsageJSON:       datatypes.JSON(usage),
		PromotedAtMs:    ptrTimeToMillis(m.PromotedAt),
		ArchivedAtMs:    ptrTimeToMillis(m.ArchivedAt),
		CreatedAtMs:     timeToMillis(m.CreatedAt),
		UpdatedAtMs:     timeToMillis(m.UpdatedAt),
	}, nil
}

func modelMetadataToRecord(row modelMetadataModel) (registry.ModelMetadata, error) {
	m := registry.ModelMetadata{
		ModelID:      row.ModelID,
		Version:      row.Version,
		Description:  row.Description,
		TrainingDate: millisToTime(row.TrainingDateMs),
		Status:       registry.Status(row.Status),
		PromotedAt:   millisToPtrTime(row.PromotedAtMs),
		ArchivedAt:   millisToPtrTime(row.ArchivedAtMs),
		CreatedAt:    millisToTime(row.CreatedAtMs),
		UpdatedAt:    millisToTime(row.UpdatedAtMs),
	}
	for _, part := range []struct {
		raw datatypes.JSON
		dst any
	}{
		{row.PerformanceJSON, &m.Performance},
		{row.TechnicalJSON, &m.Technical},
		{row.UsageJSON, &m.Usage},
	} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dst); err != nil {
			return registry.ModelMetadata{}, fmt.Errorf("decode model %s: %w", row.ModelID, err)
		}
	}
	return m, nil
}

func modelRowsToRecords(rows []modelMetadataModel) ([]registry.ModelMetadata, error) {
	out := make([]registry.ModelMetadata, 0, len(rows))
	for _, row := range rows {
		m, err := modelMetadataToRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
