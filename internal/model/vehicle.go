package model

import "time"

// Vehicle is a registered vehicle and its owner details.
type Vehicle struct {
	PlateNumber string    `gorm:"primaryKey;size:64" json:"plate_number"`
	FullName    string    `gorm:"size:256;not null" json:"full_name"`
	IDNumber    string    `gorm:"size:64;not null" json:"id_number"`
	VehicleType string    `gorm:"size:64;not null" json:"vehicle_type"`
	MobileNo    string    `gorm:"size:32;not null" json:"mobile_no"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
}
