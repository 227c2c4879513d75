package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"qr-parking-backend/internal/model"
	"qr-parking-backend/internal/occupancy"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the JSON payload delivered to the browser.
type Message struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	AreaCode string `json:"area_code"`
}

// WorkerPool tells subscribers when an area that was full has room again.
type WorkerPool struct {
	size    int
	jobs    chan string
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size*16),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines. They exit when ctx is done.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log.Printf("Worker %d started", id)
	for {
		select {
		case areaCode := <-wp.jobs:
			log.Printf("Worker %d processing area %s", id, areaCode)
			wp.sendNotificationsForArea(ctx, areaCode)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an area for notification. It never blocks the caller; when
// the queue is full the job is dropped.
func (wp *WorkerPool) Dispatch(areaCode string) {
	select {
	case wp.jobs <- areaCode:
	default:
		log.Printf("Notification queue full, dropping job for area %s", areaCode)
	}
}

// OnScan queues a notification when a scan freed a place in a full area.
func (wp *WorkerPool) OnScan(res occupancy.Result) {
	if res.FreedArea != "" {
		wp.Dispatch(res.FreedArea)
	}
}

func (wp *WorkerPool) sendNotificationsForArea(ctx context.Context, areaCode string) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_area_mapping sam ON sam.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sam.parking_area_area_code = ?", areaCode).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for area %s: %v", areaCode, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for area %s", len(subscriptions), areaCode)

	msg := Message{Title: "Parking available", AreaCode: areaCode}
	var area model.ParkingArea
	if err := wp.db.WithContext(ctx).
		Select("area_name", "capacity", "current_count").
		Where("area_code = ?", areaCode).
		First(&area).Error; err != nil {
		log.Printf("Error fetching area %s: %v", areaCode, err)
		msg.Body = fmt.Sprintf("Area %s has space again.", areaCode)
	} else {
		msg.Body = fmt.Sprintf("%s has space again (%d/%d).", area.AreaName, area.CurrentCount, area.Capacity)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error encoding notification for area %s: %v", areaCode, err)
		return
	}
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
