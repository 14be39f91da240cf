package models

// SweepLock is a database lease coordinating the deadline sweep between
// multiple instances in HA mode. Only the instance holding the unexpired
// lease runs the sweep.
type SweepLock struct {
	LockName   string `gorm:"primaryKey;size:255"`
	InstanceID string `gorm:"size:255;not null"`
	AcquiredAt int64  `gorm:"not null;index"`
	ExpiresAt  int64  `gorm:"not null;index"`
}

// TableName specifies the table name for GORM
func (SweepLock) TableName() string {
	return "sweep_locks"
}
