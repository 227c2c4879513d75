package model

import "time"

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Areas the subscriber wants to hear about when space frees up.
	Areas []*ParkingArea `gorm:"many2many:subscription_area_mapping;constraint:OnDelete:CASCADE"`
}
