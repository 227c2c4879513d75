package model

import "time"

// ParkingArea is a capacity-bounded section of the facility.
type ParkingArea struct {
	AreaCode     string    `gorm:"primaryKey;size:32" json:"area_code"`
	AreaName     string    `gorm:"size:128;not null" json:"area_name"`
	Capacity     int       `gorm:"not null;check:capacity > 0" json:"capacity"`
	CurrentCount int       `gorm:"not null;default:0;check:current_count >= 0" json:"current_count"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// IsFull reports whether the area counter has reached its capacity.
func (a ParkingArea) IsFull() bool {
	return a.CurrentCount >= a.Capacity
}
