package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qr-parking-backend/internal/model"
)

// ReplaceSubscription upserts a push subscription and replaces the set of
// areas it follows. Unknown area codes are ignored.
func (s *gormStore) ReplaceSubscription(ctx context.Context, sub *model.PushSubscription, areaCodes []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Omit("Areas").Create(sub).Error; err != nil {
			return fmt.Errorf("failed to upsert subscription: %w", err)
		}

		var areas []*model.ParkingArea
		if len(areaCodes) > 0 {
			if err := tx.Where("area_code IN ?", areaCodes).Find(&areas).Error; err != nil {
				return fmt.Errorf("failed to find areas: %w", err)
			}
		}

		if err := tx.Model(sub).Association("Areas").Replace(areas); err != nil {
			return fmt.Errorf("failed to update subscription areas: %w", err)
		}
		sub.Areas = areas
		return nil
	})
}

func (s *gormStore) FindSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).Preload("Areas").Where("endpoint = ?", endpoint).First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

// DeleteSubscription removes the subscription and its area mappings.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := &model.PushSubscription{Endpoint: endpoint}
		if err := tx.Model(sub).Association("Areas").Clear(); err != nil {
			return err
		}
		res := tx.Delete(sub)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
