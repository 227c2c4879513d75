package model

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// ParkingSession is one continuous stay of a vehicle inside the facility.
// A session with a null TimeOut is open; at most one open session exists per plate.
type ParkingSession struct {
	ID          int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	PlateNumber string      `gorm:"size:64;not null;index;index:idx_parking_sessions_open_plate,unique,where:time_out IS NULL" json:"plate_number"`
	TimeIn      time.Time   `gorm:"not null;index" json:"time_in"`
	TimeOut     null.Time   `gorm:"index" json:"time_out"`
	ParkingArea null.String `gorm:"size:32;index" json:"parking_area"`
}

// IsOpen reports whether the vehicle is still inside.
func (s ParkingSession) IsOpen() bool {
	return !s.TimeOut.Valid
}
