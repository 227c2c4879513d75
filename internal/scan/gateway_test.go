package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qr-parking-backend/internal/occupancy"
)

type call struct {
	plate string
	area  string
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeEngine) Scan(_ context.Context, plate, areaCode string) (occupancy.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{plate, areaCode})
	if f.err != nil {
		return occupancy.Result{}, f.err
	}
	return occupancy.Result{Status: occupancy.StatusEntered, Plate: plate, Area: areaCode}, nil
}

func (f *fakeEngine) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestGateway_Submit(t *testing.T) {
	testCases := []struct {
		name          string
		scans         []call // raw payload, area
		expected      []occupancy.Status
		expectedCalls []call
	}{
		{
			name:          "Registration payload is reduced to the plate",
			scans:         []call{{"Plate: ABC-999\nValid Until: 2025-01-01", "A1"}},
			expected:      []occupancy.Status{occupancy.StatusEntered},
			expectedCalls: []call{{"ABC-999", "A1"}},
		},
		{
			name:          "Repeated read within cooldown is ignored",
			scans:         []call{{"ABC-999", ""}, {"Plate: ABC-999", ""}},
			expected:      []occupancy.Status{occupancy.StatusEntered, occupancy.StatusIgnored},
			expectedCalls: []call{{"ABC-999", ""}},
		},
		{
			name:          "Area and plate-only cooldowns are independent",
			scans:         []call{{"ABC-999", ""}, {"ABC-999", "A1"}, {"ABC-999", "B1"}, {"ABC-999", "A1"}},
			expected:      []occupancy.Status{occupancy.StatusEntered, occupancy.StatusEntered, occupancy.StatusEntered, occupancy.StatusIgnored},
			expectedCalls: []call{{"ABC-999", ""}, {"ABC-999", "A1"}, {"ABC-999", "B1"}},
		},
		{
			name:          "Different plates do not share a cooldown",
			scans:         []call{{"AAA", "A1"}, {"BBB", "A1"}},
			expected:      []occupancy.Status{occupancy.StatusEntered, occupancy.StatusEntered},
			expectedCalls: []call{{"AAA", "A1"}, {"BBB", "A1"}},
		},
		{
			name:          "Separator characters in area or plate do not merge keys",
			scans:         []call{{"C", "A|B"}, {"B|C", "A"}},
			expected:      []occupancy.Status{occupancy.StatusEntered, occupancy.StatusEntered},
			expectedCalls: []call{{"C", "A|B"}, {"B|C", "A"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &fakeEngine{}
			gw := NewGateway(engine, time.Minute, 4)

			var statuses []occupancy.Status
			for _, s := range tc.scans {
				res, err := gw.Submit(context.Background(), s.plate, s.area)
				require.NoError(t, err)
				statuses = append(statuses, res.Status)
			}
			assert.Equal(t, tc.expected, statuses)
			assert.Equal(t, tc.expectedCalls, engine.calls)
		})
	}
}

func TestGateway_DuplicateResult(t *testing.T) {
	gw := NewGateway(&fakeEngine{}, time.Minute, 4)
	_, err := gw.Submit(context.Background(), "XYZ", "A1")
	require.NoError(t, err)

	res, err := gw.Submit(context.Background(), "XYZ", "A1")
	require.NoError(t, err)
	assert.Equal(t, occupancy.Result{Status: occupancy.StatusIgnored, Plate: "XYZ", Area: "A1", Message: "Duplicate scan"}, res)
}

func TestGateway_EmptyPayload(t *testing.T) {
	engine := &fakeEngine{}
	gw := NewGateway(engine, time.Minute, 4)

	for _, raw := range []string{"", "   ", "Plate:  \nValid Until: 2025-01-01"} {
		_, err := gw.Submit(context.Background(), raw, "")
		assert.ErrorIs(t, err, occupancy.ErrEmptyIdentifier)
	}
	assert.Zero(t, engine.count())
	assert.Zero(t, gw.Tracked())
}

func TestGateway_CooldownExpires(t *testing.T) {
	engine := &fakeEngine{}
	gw := NewGateway(engine, 30*time.Millisecond, 2)

	_, err := gw.Submit(context.Background(), "XYZ", "")
	require.NoError(t, err)
	assert.Equal(t, 1, gw.Tracked())

	// Swept by the janitor once the window has passed.
	assert.Eventually(t, func() bool { return gw.Tracked() == 0 }, time.Second, 10*time.Millisecond)

	res, err := gw.Submit(context.Background(), "XYZ", "")
	require.NoError(t, err)
	assert.Equal(t, occupancy.StatusEntered, res.Status)
	assert.Equal(t, 2, engine.count())
}

func TestGateway_ConcurrentDuplicatesReachEngineOnce(t *testing.T) {
	engine := &fakeEngine{}
	gw := NewGateway(engine, time.Minute, 4)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.Submit(context.Background(), "BURST1", "A1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, engine.count())
}

func TestGateway_Listeners(t *testing.T) {
	engine := &fakeEngine{}
	var seen []occupancy.Result
	gw := NewGateway(engine, time.Minute, 4, ListenerFunc(func(res occupancy.Result) {
		seen = append(seen, res)
	}))

	_, err := gw.Submit(context.Background(), "L1", "A1")
	require.NoError(t, err)
	_, err = gw.Submit(context.Background(), "L1", "A1") // ignored
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "L1", seen[0].Plate)

	engine.err = errors.New("boom")
	_, err = gw.Submit(context.Background(), "L2", "A1")
	assert.Error(t, err)
	assert.Len(t, seen, 1)
}
