package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qr-parking-backend/internal/model"
)

// AreaRecount records one counter correction made by RecountAreas.
type AreaRecount struct {
	AreaCode string `json:"area_code"`
	Before   int    `json:"before"`
	After    int    `json:"after"`
}

func (s *gormStore) FindArea(ctx context.Context, code string) (*model.ParkingArea, error) {
	var area model.ParkingArea
	if err := s.db.WithContext(ctx).Where("area_code = ?", code).First(&area).Error; err != nil {
		return nil, translate(err)
	}
	return &area, nil
}

func (s *gormStore) ListAreas(ctx context.Context) ([]model.ParkingArea, error) {
	var areas []model.ParkingArea
	if err := s.db.WithContext(ctx).Order("area_code").Find(&areas).Error; err != nil {
		return nil, err
	}
	return areas, nil
}

// UpsertArea provisions an area or renames/resizes an existing one.
// The occupancy counter is never touched here, and an existing area cannot
// shrink below the vehicles it currently holds.
func (s *gormStore) UpsertArea(ctx context.Context, area *model.ParkingArea) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("area_code = ?", area.AreaCode)
		if s.isPostgres() {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var existing model.ParkingArea
		err := q.First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return translate(err)
		default:
			var open int64
			if err := tx.Model(&model.ParkingSession{}).
				Where("parking_area = ? AND time_out IS NULL", area.AreaCode).
				Count(&open).Error; err != nil {
				return fmt.Errorf("failed to count open sessions in %s: %w", area.AreaCode, err)
			}
			occupied := max(int(open), existing.CurrentCount)
			if area.Capacity < occupied {
				return fmt.Errorf("%w: %s holds %d vehicles", ErrCapacityBelowOccupancy, area.AreaCode, occupied)
			}
		}

		return translate(tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "area_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"area_name", "capacity", "updated_at"}),
		}).Omit("current_count").Create(area).Error)
	})
}

// LockAreas takes the area row locks in a fixed order so that transactions
// touching the same pair of areas cannot deadlock.
func (s *gormStore) LockAreas(ctx context.Context, codes ...string) error {
	if !s.isPostgres() || len(codes) == 0 {
		return nil
	}
	var areas []model.ParkingArea
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("area_code IN ?", codes).
		Order("area_code").
		Find(&areas).Error
	if err != nil {
		return fmt.Errorf("failed to lock areas %v: %w", codes, err)
	}
	return nil
}

// IncrementAreaCount admits one vehicle if the area still has room.
// The capacity comparison and the increment are a single statement, so
// concurrent admissions near capacity cannot overshoot.
func (s *gormStore) IncrementAreaCount(ctx context.Context, code string) (*model.ParkingArea, error) {
	res := s.db.WithContext(ctx).Model(&model.ParkingArea{}).
		Where("area_code = ? AND current_count < capacity", code).
		UpdateColumn("current_count", gorm.Expr("current_count + ?", 1))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to increment area %s: %w", code, res.Error)
	}

	area, err := s.FindArea(ctx, code)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return area, ErrCapacityReached
	}
	return area, nil
}

// DecrementAreaCount releases one place in the area, never going below zero.
// The boolean reports whether a place was actually released.
func (s *gormStore) DecrementAreaCount(ctx context.Context, code string) (*model.ParkingArea, bool, error) {
	res := s.db.WithContext(ctx).Model(&model.ParkingArea{}).
		Where("area_code = ? AND current_count > 0", code).
		UpdateColumn("current_count", gorm.Expr("current_count - ?", 1))
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to decrement area %s: %w", code, res.Error)
	}
	if res.RowsAffected == 0 {
		log.Printf("Area %s counter already at zero; nothing to release", code)
	}

	area, err := s.FindArea(ctx, code)
	if err != nil {
		return nil, false, err
	}
	return area, res.RowsAffected > 0, nil
}

// RecountAreas rewrites every area counter from the open sessions assigned to it.
func (s *gormStore) RecountAreas(ctx context.Context) ([]AreaRecount, error) {
	var changes []AreaRecount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var areas []model.ParkingArea
		if err := tx.Order("area_code").Find(&areas).Error; err != nil {
			return err
		}

		counts, err := openCountsByArea(tx)
		if err != nil {
			return err
		}

		for _, area := range areas {
			actual := counts[area.AreaCode]
			if actual == area.CurrentCount {
				continue
			}
			if actual > area.Capacity {
				log.Printf("Area %s holds %d open sessions but capacity is %d", area.AreaCode, actual, area.Capacity)
			}
			if err := tx.Model(&model.ParkingArea{}).
				Where("area_code = ?", area.AreaCode).
				UpdateColumn("current_count", actual).Error; err != nil {
				return fmt.Errorf("failed to recount area %s: %w", area.AreaCode, err)
			}
			changes = append(changes, AreaRecount{AreaCode: area.AreaCode, Before: area.CurrentCount, After: actual})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func openCountsByArea(db *gorm.DB) (map[string]int, error) {
	type row struct {
		ParkingArea string
		Total       int
	}
	var rows []row
	if err := db.Model(&model.ParkingSession{}).
		Select("parking_area, COUNT(*) AS total").
		Where("time_out IS NULL AND parking_area IS NOT NULL").
		Group("parking_area").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count open sessions per area: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.ParkingArea] = r.Total
	}
	return counts, nil
}
