package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SyncStatus is the lifecycle status of a sync run.
type SyncStatus string

const (
	SyncNotStarted          SyncStatus = "Not Started"
	SyncInProgress          SyncStatus = "In Progress"
	SyncCompleted           SyncStatus = "Completed"
	SyncCompletedWithErrors SyncStatus = "Completed with Errors"
	SyncFailed              SyncStatus = "Failed"
	SyncStopped             SyncStatus = "Stopped"
)

// Terminal reports whether the status marks a finished run.
func (s SyncStatus) Terminal() bool {
	switch s {
	case SyncCompleted, SyncCompletedWithErrors, SyncFailed, SyncStopped:
		return true
	}
	return false
}

// SyncState tracks the sync state of one provider integration. The watermark
// is the exclusive lower bound for the next fetch and only ever moves forward.
type SyncState struct {
	Provider     string     `json:"provider"`
	Status       SyncStatus `json:"status"`
	Watermark    *time.Time `json:"watermark,omitempty"`
	Processed    int        `json:"processed"`
	Total        int        `json:"total"`
	Progress     float64    `json:"progress"`
	LastError    string     `json:"last_error,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ErrorCount   int        `json:"error_count"`
	CreatedCount int        `json:"created_count"`
}

// String returns the JSON string representation of the sync state
func (s *SyncState) String() string {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal sync state: %v"}`, err)
	}
	return string(data)
}

// ProgressEvent is the fire-and-forget notification published while a run is
// in flight, for UI consumption.
type ProgressEvent struct {
	Provider  string     `json:"provider"`
	Processed int        `json:"processed"`
	Total     int        `json:"total"`
	Progress  float64    `json:"progress"`
	Status    SyncStatus `json:"status"`
	At        time.Time  `json:"at"`
}
