package model

import (
	"time"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&KnownDevice{},
}

// KnownDevice remembers a tracked device after it has been seen once, so
// configured serials can be shown as disconnected instead of unknown.
type KnownDevice struct {
	Serial    string    `json:"serial" gorm:"primaryKey;size:128"`
	Class     string    `json:"class" gorm:"size:32"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen" gorm:"index"`
}

func (*KnownDevice) TableName() string {
	return "known_devices"
}
