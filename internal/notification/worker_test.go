package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"qr-parking-backend/internal/model"
	"qr-parking-backend/internal/occupancy"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

const subscriptionQuery = `SELECT .* FROM "push_subscriptions".*JOIN subscription_area_mapping sam.*WHERE sam\.parking_area_area_code = \$1`
const areaQuery = `SELECT "area_name","capacity","current_count" FROM "parking_areas" WHERE area_code = \$1 ORDER BY "parking_areas"."area_code" LIMIT \$[0-9]+`

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})

	wp.Dispatch("A1")

	select {
	case job := <-wp.jobs:
		assert.Equal(t, "A1", job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchNeverBlocks(t *testing.T) {
	wp := NewWorkerPool(1, nil, &webpush.Options{})
	for i := 0; i < cap(wp.jobs)+10; i++ {
		wp.Dispatch(fmt.Sprintf("A%d", i))
	}
	assert.Len(t, wp.jobs, cap(wp.jobs))
}

func TestWorkerPool_OnScan(t *testing.T) {
	wp := NewWorkerPool(1, nil, &webpush.Options{})

	wp.OnScan(occupancy.Result{Status: occupancy.StatusEntered, Area: "A1"})
	assert.Empty(t, wp.jobs)

	wp.OnScan(occupancy.Result{Status: occupancy.StatusExited, FreedArea: "A1"})
	require.Len(t, wp.jobs, 1)
	assert.Equal(t, "A1", <-wp.jobs)
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		subscription := model.PushSubscription{
			Endpoint: "https://example.com/push",
			P256DH:   "test_p256dh",
			Auth:     "test_auth",
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.JSONEq(t, `{"title":"Parking available","body":"North Deck has space again (4/5).","area_code":"A1"}`, string(payload))
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs("A1").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow(subscription.Endpoint, subscription.P256DH, subscription.Auth, time.Now()))

		mock.ExpectQuery(areaQuery).
			WithArgs("A1", 1).
			WillReturnRows(sqlmock.NewRows([]string{"area_name", "capacity", "current_count"}).AddRow("North Deck", 5, 4))

		wp.Dispatch("A1")
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		subscription := model.PushSubscription{
			Endpoint: "https://example.com/expired",
			P256DH:   "test_p256dh_expired",
			Auth:     "test_auth_expired",
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs("B2").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow(subscription.Endpoint, subscription.P256DH, subscription.Auth, time.Now()))

		mock.ExpectQuery(areaQuery).
			WithArgs("B2", 1).
			WillReturnRows(sqlmock.NewRows([]string{"area_name", "capacity", "current_count"}).AddRow("South", 2, 1))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs(subscription.Endpoint).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch("B2")

		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
	})

	t.Run("falls back to area code when lookup fails", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/fallback", sub.Endpoint)
				assert.Contains(t, string(payload), `"body":"Area C3 has space again."`)
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs("C3").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/fallback", "k", "a", time.Now()))

		mock.ExpectQuery(areaQuery).
			WithArgs("C3", 1).
			WillReturnError(fmt.Errorf("area not found"))

		wp.Dispatch("C3")
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWorkerPool_ShutdownLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)

	wp := NewWorkerPool(3, nil, &webpush.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	wp.Start(ctx)
	cancel()
	wp.Wait()
}
