package occupancy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"qr-parking-backend/config"
	"qr-parking-backend/internal/db"
	"qr-parking-backend/internal/model"
	"qr-parking-backend/internal/store"
)

func newTestEngine(t *testing.T, areas ...model.ParkingArea) (*Engine, store.Store, *gorm.DB) {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := db.Init(&config.DatabaseConfig{
		DSN:          fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	st := store.NewGormStore(gormDB)
	for i := range areas {
		require.NoError(t, st.UpsertArea(context.Background(), &areas[i]))
	}
	return NewEngine(st, 5*time.Second), st, gormDB
}

func openSessions(t *testing.T, gormDB *gorm.DB, plate string) []model.ParkingSession {
	var sessions []model.ParkingSession
	require.NoError(t, gormDB.Where("plate_number = ? AND time_out IS NULL", plate).Find(&sessions).Error)
	return sessions
}

func areaCount(t *testing.T, st store.Store, code string) int {
	area, err := st.FindArea(context.Background(), code)
	require.NoError(t, err)
	return area.CurrentCount
}

func TestEngine_PlateOnlyScanToggles(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()

	res, err := engine.Scan(ctx, "ABC123", "")
	require.NoError(t, err)
	assert.Equal(t, StatusEntered, res.Status)
	assert.Nil(t, res.Occupancy)
	require.NotNil(t, res.Time)

	open := openSessions(t, gormDB, "ABC123")
	require.Len(t, open, 1)
	assert.Equal(t, res.SessionID, open[0].ID)
	assert.False(t, open[0].ParkingArea.Valid)

	res, err = engine.Scan(ctx, "ABC123", "")
	require.NoError(t, err)
	assert.Equal(t, StatusExited, res.Status)
	assert.Equal(t, open[0].ID, res.SessionID)
	assert.Empty(t, openSessions(t, gormDB, "ABC123"))

	var total int64
	require.NoError(t, gormDB.Model(&model.ParkingSession{}).Where("plate_number = ?", "ABC123").Count(&total).Error)
	assert.Equal(t, int64(1), total)

	res, err = engine.Scan(ctx, "ABC123", "")
	require.NoError(t, err)
	assert.Equal(t, StatusEntered, res.Status)
	assert.NotEqual(t, open[0].ID, res.SessionID)
}

func TestEngine_CapacityExample(t *testing.T) {
	engine, st, gormDB := newTestEngine(t, model.ParkingArea{AreaCode: "A1", AreaName: "Lot A1", Capacity: 1})
	ctx := context.Background()

	res, err := engine.Scan(ctx, "XYZ123", "A1")
	require.NoError(t, err)
	assert.Equal(t, StatusEntered, res.Status)
	assert.Equal(t, "A1", res.Area)
	require.NotNil(t, res.Occupancy)
	assert.Equal(t, 1, *res.Occupancy)

	res, err = engine.Scan(ctx, "OTHER1", "A1")
	require.NoError(t, err)
	assert.Equal(t, StatusFull, res.Status)
	assert.Equal(t, "Lot A1", res.AreaName)
	assert.Equal(t, "Lot A1 is full", res.Message)
	assert.Empty(t, openSessions(t, gormDB, "OTHER1"))
	assert.Equal(t, 1, areaCount(t, st, "A1"))

	res, err = engine.Scan(ctx, "XYZ123", "")
	require.NoError(t, err)
	assert.Equal(t, StatusExited, res.Status)
	assert.Equal(t, "A1", res.FreedArea)
	assert.Equal(t, 0, areaCount(t, st, "A1"))
}

func TestEngine_Transfer(t *testing.T) {
	engine, st, gormDB := newTestEngine(t,
		model.ParkingArea{AreaCode: "A1", AreaName: "North", Capacity: 2},
		model.ParkingArea{AreaCode: "B1", AreaName: "South", Capacity: 1},
	)
	ctx := context.Background()

	entered, err := engine.Scan(ctx, "CAR1", "A1")
	require.NoError(t, err)
	before := openSessions(t, gormDB, "CAR1")
	require.Len(t, before, 1)

	res, err := engine.Scan(ctx, "CAR1", "B1")
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, res.Status)
	assert.Equal(t, "B1", res.Area)
	assert.Equal(t, "A1", res.PreviousArea)
	assert.Equal(t, noteTransferred, res.Note)
	assert.Equal(t, entered.SessionID, res.SessionID)
	assert.Empty(t, res.FreedArea)
	assert.Equal(t, 0, areaCount(t, st, "A1"))
	assert.Equal(t, 1, areaCount(t, st, "B1"))

	after := openSessions(t, gormDB, "CAR1")
	require.Len(t, after, 1)
	assert.Equal(t, "B1", after[0].ParkingArea.String)
	assert.True(t, before[0].TimeIn.Equal(after[0].TimeIn))

	res, err = engine.Scan(ctx, "CAR1", "B1")
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, res.Status)
	assert.Equal(t, noteSameArea, res.Note)
	assert.Equal(t, 1, areaCount(t, st, "B1"))

	// B1 is full now, so CAR2 stays where it is.
	_, err = engine.Scan(ctx, "CAR2", "A1")
	require.NoError(t, err)
	res, err = engine.Scan(ctx, "CAR2", "B1")
	require.NoError(t, err)
	assert.Equal(t, StatusFull, res.Status)
	assert.Equal(t, "A1", openSessions(t, gormDB, "CAR2")[0].ParkingArea.String)
	assert.Equal(t, 1, areaCount(t, st, "A1"))
	assert.Equal(t, 1, areaCount(t, st, "B1"))

	// Leaving the full area frees it.
	res, err = engine.Scan(ctx, "CAR1", "A1")
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, res.Status)
	assert.Equal(t, "B1", res.FreedArea)
	assert.Equal(t, 2, areaCount(t, st, "A1"))
	assert.Equal(t, 0, areaCount(t, st, "B1"))
}

// counterCalls records the area counter calls made through a store.
type counterCalls struct {
	store.Store
	mu    *sync.Mutex
	calls *[]string
}

func (r *counterCalls) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.calls = append(*r.calls, call)
}

func (r *counterCalls) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return r.Store.Transaction(ctx, func(tx store.Store) error {
		return fn(&counterCalls{Store: tx, mu: r.mu, calls: r.calls})
	})
}

func (r *counterCalls) LockAreas(ctx context.Context, codes ...string) error {
	r.record("lock " + strings.Join(codes, ","))
	return r.Store.LockAreas(ctx, codes...)
}

func (r *counterCalls) IncrementAreaCount(ctx context.Context, code string) (*model.ParkingArea, error) {
	r.record("inc " + code)
	return r.Store.IncrementAreaCount(ctx, code)
}

func (r *counterCalls) DecrementAreaCount(ctx context.Context, code string) (*model.ParkingArea, bool, error) {
	r.record("dec " + code)
	return r.Store.DecrementAreaCount(ctx, code)
}

func TestEngine_TransferLocksBothAreasFirst(t *testing.T) {
	_, st, _ := newTestEngine(t,
		model.ParkingArea{AreaCode: "A1", AreaName: "North", Capacity: 2},
		model.ParkingArea{AreaCode: "B1", AreaName: "South", Capacity: 2},
	)
	var calls []string
	engine := NewEngine(&counterCalls{Store: st, mu: &sync.Mutex{}, calls: &calls}, 5*time.Second)
	ctx := context.Background()

	_, err := engine.Scan(ctx, "CAR1", "B1")
	require.NoError(t, err)
	_, err = engine.Scan(ctx, "CAR1", "A1")
	require.NoError(t, err)
	_, err = engine.Scan(ctx, "CAR1", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"inc B1", "lock B1,A1", "inc A1", "dec B1", "dec A1"}, calls)
}

func TestEngine_UnassignedSessionMovesIntoArea(t *testing.T) {
	engine, st, gormDB := newTestEngine(t, model.ParkingArea{AreaCode: "A1", AreaName: "North", Capacity: 3})
	ctx := context.Background()

	_, err := engine.Scan(ctx, "GATE1", "")
	require.NoError(t, err)

	res, err := engine.Scan(ctx, "GATE1", "A1")
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, res.Status)
	assert.Empty(t, res.PreviousArea)
	assert.Equal(t, 1, areaCount(t, st, "A1"))
	assert.Len(t, openSessions(t, gormDB, "GATE1"), 1)
}

func TestEngine_Errors(t *testing.T) {
	engine, _, gormDB := newTestEngine(t, model.ParkingArea{AreaCode: "A1", AreaName: "North", Capacity: 3})
	ctx := context.Background()

	_, err := engine.Scan(ctx, "   ", "A1")
	assert.ErrorIs(t, err, ErrEmptyIdentifier)

	_, err = engine.Scan(ctx, "LOST1", "Z9")
	assert.ErrorIs(t, err, ErrUnknownArea)
	assert.Empty(t, openSessions(t, gormDB, "LOST1"))

	_, err = engine.AreaStatus(ctx, "Z9")
	assert.ErrorIs(t, err, ErrUnknownArea)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = engine.Scan(ctx, "LOST1", "")
	assert.ErrorIs(t, err, ErrStorage)
}

func TestEngine_ConcurrentAdmissionsNeverExceedCapacity(t *testing.T) {
	engine, st, gormDB := newTestEngine(t, model.ParkingArea{AreaCode: "A1", AreaName: "North", Capacity: 5})
	ctx := context.Background()

	const vehicles = 20
	results := make(chan Result, vehicles)
	var wg sync.WaitGroup
	for i := 0; i < vehicles; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := engine.Scan(ctx, fmt.Sprintf("CAR%02d", i), "A1")
			assert.NoError(t, err)
			results <- res
		}(i)
	}
	wg.Wait()
	close(results)

	counts := map[Status]int{}
	for r := range results {
		counts[r.Status]++
	}
	assert.Equal(t, 5, counts[StatusEntered])
	assert.Equal(t, 15, counts[StatusFull])
	assert.Equal(t, 5, areaCount(t, st, "A1"))

	var open int64
	require.NoError(t, gormDB.Model(&model.ParkingSession{}).Where("time_out IS NULL").Count(&open).Error)
	assert.Equal(t, int64(5), open)
}

func TestEngine_ConcurrentScansOfOnePlate(t *testing.T) {
	engine, _, gormDB := newTestEngine(t)
	ctx := context.Background()

	const scans = 10
	results := make(chan Result, scans)
	var wg sync.WaitGroup
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.Scan(ctx, "SAME1", "")
			assert.NoError(t, err)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	counts := map[Status]int{}
	for r := range results {
		counts[r.Status]++
	}
	assert.Equal(t, scans/2, counts[StatusEntered])
	assert.Equal(t, scans/2, counts[StatusExited])
	assert.Empty(t, openSessions(t, gormDB, "SAME1"))
	assert.Equal(t, 0, engine.locks.size())
}

func TestEngine_Recount(t *testing.T) {
	engine, st, gormDB := newTestEngine(t, model.ParkingArea{AreaCode: "A1", AreaName: "North", Capacity: 5})
	ctx := context.Background()

	_, err := engine.Scan(ctx, "CAR1", "A1")
	require.NoError(t, err)
	require.NoError(t, gormDB.Model(&model.ParkingArea{}).Where("area_code = ?", "A1").
		UpdateColumn("current_count", 4).Error)

	changes, err := engine.Recount(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.AreaRecount{{AreaCode: "A1", Before: 4, After: 1}}, changes)
	assert.Equal(t, 1, areaCount(t, st, "A1"))
}

func TestPlateLocks_Serializes(t *testing.T) {
	locks := newPlateLocks()
	unlock := locks.lock("P1")

	acquired := make(chan struct{})
	go func() {
		u := locks.lock("P1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held plate lock")
	case <-time.After(50 * time.Millisecond):
	}

	// Other plates are independent.
	locks.lock("P2")()

	unlock()
	<-acquired
	assert.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, 5*time.Millisecond)
}
