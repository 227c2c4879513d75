package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"qr-parking-backend/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("record already exists")
	// ErrCapacityReached is returned by IncrementAreaCount when the area is full.
	ErrCapacityReached = errors.New("area capacity reached")
	// ErrCapacityBelowOccupancy is returned by UpsertArea when the new capacity
	// is smaller than the number of vehicles already in the area.
	ErrCapacityBelowOccupancy = errors.New("capacity below current occupancy")
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	// Transaction runs fn against a Store bound to a single database transaction.
	// Returning an error from fn rolls back every write made through tx.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	FindArea(ctx context.Context, code string) (*model.ParkingArea, error)
	ListAreas(ctx context.Context) ([]model.ParkingArea, error)
	UpsertArea(ctx context.Context, area *model.ParkingArea) error
	// LockAreas row-locks the given areas in area_code order until the
	// surrounding transaction ends. It is a no-op where row locks are unsupported.
	LockAreas(ctx context.Context, codes ...string) error
	IncrementAreaCount(ctx context.Context, code string) (*model.ParkingArea, error)
	DecrementAreaCount(ctx context.Context, code string) (*model.ParkingArea, bool, error)
	RecountAreas(ctx context.Context) ([]AreaRecount, error)

	FindOpenSession(ctx context.Context, plate string) (*model.ParkingSession, error)
	CreateSession(ctx context.Context, session *model.ParkingSession) error
	CloseSession(ctx context.Context, id int64, at time.Time) error
	ReassignSession(ctx context.Context, id int64, areaCode string) error
	ListSessions(ctx context.Context, limit int) ([]model.ParkingSession, error)
	OpenSessionsInArea(ctx context.Context, areaCode string) ([]model.ParkingSession, error)

	CreateVehicle(ctx context.Context, vehicle *model.Vehicle) error
	FindVehicle(ctx context.Context, plate string) (*model.Vehicle, error)
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
	DeleteVehicle(ctx context.Context, plate string) (bool, error)

	Search(ctx context.Context, query string) (*SearchResult, error)
	Dashboard(ctx context.Context, now time.Time, loc *time.Location) (*Dashboard, error)
	DailyReport(ctx context.Context, now time.Time, loc *time.Location, days int) ([]PeriodCount, error)
	MonthlyReport(ctx context.Context, now time.Time, loc *time.Location, months int) ([]PeriodCount, error)
	SessionsBetween(ctx context.Context, from, to time.Time) ([]model.ParkingSession, error)
	Overstays(ctx context.Context, before time.Time) ([]model.ParkingSession, error)

	ReplaceSubscription(ctx context.Context, sub *model.PushSubscription, areaCodes []string) error
	FindSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle for callers that need raw queries.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn inside a database transaction.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// isPostgres gates row locking, which SQLite does not support.
func (s *gormStore) isPostgres() bool {
	return s.db.Dialector != nil && s.db.Dialector.Name() == "postgres"
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(err.Error(), "UNIQUE constraint failed"): // sqlite primary keys
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
