package occupancy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gopkg.in/guregu/null.v4"

	"qr-parking-backend/internal/model"
	"qr-parking-backend/internal/store"
)

const (
	noteTransferred = "Vehicle already inside, parking area updated."
	noteSameArea    = "Vehicle already inside this area."
)

// Engine decides whether a scanned plate is entering, leaving or moving
// between areas, and applies the change to sessions and area counters.
type Engine struct {
	store   store.Store
	timeout time.Duration
	locks   *plateLocks
	now     func() time.Time
}

// NewEngine creates an engine. Each scan gets at most timeout to finish its
// storage work; zero means no limit beyond the caller's context.
func NewEngine(st store.Store, timeout time.Duration) *Engine {
	return &Engine{
		store:   st,
		timeout: timeout,
		locks:   newPlateLocks(),
		now:     time.Now,
	}
}

// Scan applies one scan of plate. An empty areaCode is a plate-only scan,
// which toggles between entering and exiting. A scan into an area admits the
// vehicle there, or moves it if it is already inside.
//
// A full area yields a StatusFull result with a nil error.
func (e *Engine) Scan(ctx context.Context, plate, areaCode string) (Result, error) {
	plate = strings.TrimSpace(plate)
	areaCode = strings.TrimSpace(areaCode)
	if plate == "" {
		return Result{}, ErrEmptyIdentifier
	}

	unlock := e.locks.lock(plate)
	defer unlock()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var (
		res Result
		err error
	)
	// A duplicate here means another process opened a session for the plate
	// between our read and our insert. The second attempt sees it.
	for attempt := 0; attempt < 2; attempt++ {
		res, err = e.apply(ctx, plate, areaCode)
		if !errors.Is(err, store.ErrDuplicate) {
			break
		}
		log.Printf("Concurrent session write for %s, retrying: %v", plate, err)
	}

	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, ErrAreaFull):
		return res, nil
	case errors.Is(err, ErrUnknownArea):
		return Result{}, err
	default:
		return Result{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
}

func (e *Engine) apply(ctx context.Context, plate, areaCode string) (Result, error) {
	now := e.now()
	var res Result

	err := e.store.Transaction(ctx, func(tx store.Store) error {
		var target *model.ParkingArea
		if areaCode != "" {
			area, err := tx.FindArea(ctx, areaCode)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownArea, areaCode)
			}
			if err != nil {
				return err
			}
			target = area
		}

		open, err := tx.FindOpenSession(ctx, plate)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		switch {
		case target == nil && open == nil:
			res, err = e.enter(ctx, tx, plate, now)
		case target == nil:
			res, err = e.exit(ctx, tx, open, now)
		case open == nil:
			res, err = e.enterArea(ctx, tx, plate, target, now)
		default:
			res, err = e.transfer(ctx, tx, open, target, now)
		}
		return err
	})
	return res, err
}

func (e *Engine) enter(ctx context.Context, tx store.Store, plate string, now time.Time) (Result, error) {
	session := &model.ParkingSession{PlateNumber: plate, TimeIn: now}
	if err := tx.CreateSession(ctx, session); err != nil {
		return Result{}, err
	}
	return Result{
		Status:    StatusEntered,
		Plate:     plate,
		Time:      &now,
		SessionID: session.ID,
	}, nil
}

func (e *Engine) exit(ctx context.Context, tx store.Store, open *model.ParkingSession, now time.Time) (Result, error) {
	if err := tx.CloseSession(ctx, open.ID, now); err != nil {
		return Result{}, err
	}
	res := Result{
		Status:    StatusExited,
		Plate:     open.PlateNumber,
		Time:      &now,
		SessionID: open.ID,
	}
	if !open.ParkingArea.Valid {
		return res, nil
	}

	area, freed, err := e.release(ctx, tx, open.ParkingArea.String)
	if err != nil {
		return Result{}, err
	}
	if area != nil {
		res.Area = area.AreaCode
		res.AreaName = area.AreaName
		res.Occupancy = intPtr(area.CurrentCount)
	}
	res.FreedArea = freed
	return res, nil
}

func (e *Engine) enterArea(ctx context.Context, tx store.Store, plate string, target *model.ParkingArea, now time.Time) (Result, error) {
	area, err := tx.IncrementAreaCount(ctx, target.AreaCode)
	if errors.Is(err, store.ErrCapacityReached) {
		return fullResult(plate, area), ErrAreaFull
	}
	if err != nil {
		return Result{}, err
	}

	session := &model.ParkingSession{
		PlateNumber: plate,
		TimeIn:      now,
		ParkingArea: null.StringFrom(area.AreaCode),
	}
	if err := tx.CreateSession(ctx, session); err != nil {
		return Result{}, err
	}
	return Result{
		Status:    StatusEntered,
		Plate:     plate,
		Area:      area.AreaCode,
		AreaName:  area.AreaName,
		Occupancy: intPtr(area.CurrentCount),
		Time:      &now,
		SessionID: session.ID,
	}, nil
}

func (e *Engine) transfer(ctx context.Context, tx store.Store, open *model.ParkingSession, target *model.ParkingArea, now time.Time) (Result, error) {
	res := Result{
		Status:    StatusUpdated,
		Plate:     open.PlateNumber,
		Area:      target.AreaCode,
		AreaName:  target.AreaName,
		Time:      &now,
		SessionID: open.ID,
	}
	if open.ParkingArea.Valid && open.ParkingArea.String == target.AreaCode {
		res.Note = noteSameArea
		res.Occupancy = intPtr(target.CurrentCount)
		return res, nil
	}

	if open.ParkingArea.Valid {
		if err := tx.LockAreas(ctx, open.ParkingArea.String, target.AreaCode); err != nil {
			return Result{}, err
		}
	}
	area, err := tx.IncrementAreaCount(ctx, target.AreaCode)
	if errors.Is(err, store.ErrCapacityReached) {
		return fullResult(open.PlateNumber, area), ErrAreaFull
	}
	if err != nil {
		return Result{}, err
	}
	if err := tx.ReassignSession(ctx, open.ID, target.AreaCode); err != nil {
		return Result{}, err
	}
	res.Note = noteTransferred
	res.Occupancy = intPtr(area.CurrentCount)

	if open.ParkingArea.Valid {
		res.PreviousArea = open.ParkingArea.String
		_, freed, err := e.release(ctx, tx, open.ParkingArea.String)
		if err != nil {
			return Result{}, err
		}
		res.FreedArea = freed
	}
	return res, nil
}

// release gives back one place in code. It returns the area code in freed
// when the area went from full to having room.
func (e *Engine) release(ctx context.Context, tx store.Store, code string) (*model.ParkingArea, string, error) {
	area, released, err := tx.DecrementAreaCount(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		// The area was removed while the vehicle was parked in it.
		log.Printf("Session area %s no longer exists; no counter to release", code)
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	if released && area.CurrentCount == area.Capacity-1 {
		return area, area.AreaCode, nil
	}
	return area, "", nil
}

func fullResult(plate string, area *model.ParkingArea) Result {
	res := Result{Status: StatusFull, Plate: plate}
	if area != nil {
		res.Area = area.AreaCode
		res.AreaName = area.AreaName
		res.Occupancy = intPtr(area.CurrentCount)
		res.Message = area.AreaName + " is full"
	}
	return res
}

// AreaStatus returns the registry entry for code.
func (e *Engine) AreaStatus(ctx context.Context, code string) (*model.ParkingArea, error) {
	area, err := e.store.FindArea(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArea, code)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return area, nil
}

// Recount rebuilds every area counter from the open sessions.
func (e *Engine) Recount(ctx context.Context) ([]store.AreaRecount, error) {
	changes, err := e.store.RecountAreas(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	for _, c := range changes {
		log.Printf("Recounted area %s: %d -> %d", c.AreaCode, c.Before, c.After)
	}
	return changes, nil
}
