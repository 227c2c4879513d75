package store

import (
	"context"

	"qr-parking-backend/internal/model"
)

func (s *gormStore) CreateVehicle(ctx context.Context, vehicle *model.Vehicle) error {
	return translate(s.db.WithContext(ctx).Create(vehicle).Error)
}

func (s *gormStore) FindVehicle(ctx context.Context, plate string) (*model.Vehicle, error) {
	var v model.Vehicle
	if err := s.db.WithContext(ctx).Where("plate_number = ?", plate).First(&v).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

// ListVehicles returns every registration, newest first.
func (s *gormStore) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	var vehicles []model.Vehicle
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}

// DeleteVehicle removes a registration and reports whether a row existed.
// Parking history for the plate is kept.
func (s *gormStore) DeleteVehicle(ctx context.Context, plate string) (bool, error) {
	res := s.db.WithContext(ctx).Where("plate_number = ?", plate).Delete(&model.Vehicle{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
