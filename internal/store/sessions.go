package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"qr-parking-backend/internal/model"
)

// FindOpenSession returns the newest session for plate that has no exit time.
// On Postgres the row is locked until the surrounding transaction ends.
func (s *gormStore) FindOpenSession(ctx context.Context, plate string) (*model.ParkingSession, error) {
	q := s.db.WithContext(ctx).
		Where("plate_number = ? AND time_out IS NULL", plate).
		Order("id DESC")
	if s.isPostgres() {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var session model.ParkingSession
	if err := q.First(&session).Error; err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

// CreateSession inserts a new open session. A second open session for the
// same plate violates idx_parking_sessions_open_plate and yields ErrDuplicate.
func (s *gormStore) CreateSession(ctx context.Context, session *model.ParkingSession) error {
	return translate(s.db.WithContext(ctx).Create(session).Error)
}

func (s *gormStore) CloseSession(ctx context.Context, id int64, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.ParkingSession{}).
		Where("id = ? AND time_out IS NULL", id).
		Update("time_out", at)
	if res.Error != nil {
		return fmt.Errorf("failed to close session %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReassignSession moves an open session to another area. Time in is kept.
func (s *gormStore) ReassignSession(ctx context.Context, id int64, areaCode string) error {
	res := s.db.WithContext(ctx).Model(&model.ParkingSession{}).
		Where("id = ? AND time_out IS NULL", id).
		Update("parking_area", areaCode)
	if res.Error != nil {
		return fmt.Errorf("failed to reassign session %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) ListSessions(ctx context.Context, limit int) ([]model.ParkingSession, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var sessions []model.ParkingSession
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *gormStore) OpenSessionsInArea(ctx context.Context, areaCode string) ([]model.ParkingSession, error) {
	var sessions []model.ParkingSession
	err := s.db.WithContext(ctx).
		Where("parking_area = ? AND time_out IS NULL", areaCode).
		Order("time_in DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// SessionsBetween lists sessions whose time in falls in [from, to).
func (s *gormStore) SessionsBetween(ctx context.Context, from, to time.Time) ([]model.ParkingSession, error) {
	var sessions []model.ParkingSession
	err := s.db.WithContext(ctx).
		Where("time_in >= ? AND time_in < ?", from, to).
		Order("time_in DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Overstays lists open sessions that entered before the cutoff.
func (s *gormStore) Overstays(ctx context.Context, before time.Time) ([]model.ParkingSession, error) {
	var sessions []model.ParkingSession
	err := s.db.WithContext(ctx).
		Where("time_out IS NULL AND time_in < ?", before).
		Order("time_in ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
