package models

// SyncStatus is the user-visible result of a reconciliation pass.
type SyncStatus string

const (
	SyncStatusNever   SyncStatus = "never"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusOffline SyncStatus = "offline"
)

// SyncRun is one journaled reconciliation pass for an owner.
type SyncRun struct {
	Base
	OwnerID    string     `gorm:"not null;index" json:"owner_id"`
	StartedAt  int64      `gorm:"not null" json:"started_at"`
	FinishedAt int64      `gorm:"not null" json:"finished_at"`
	Status     SyncStatus `gorm:"not null" json:"status"`
	Pushed     int        `json:"pushed"`
	PushFailed int        `json:"push_failed"`
	Pulled     int        `json:"pulled"`
	Errors     string     `json:"errors,omitempty"`
}
