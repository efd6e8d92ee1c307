package config

import "time"

// SyncConfig holds synchronization tuning knobs
type SyncConfig struct {
	PageSize          int
	MaxPages          int
	DefaultLookback   time.Duration
	StaleLockTimeout  time.Duration
	TokenExpiryBuffer time.Duration
	ProgressInterval  int
	EnableAPILog      bool
}

// DefaultSyncConfig returns the default sync configuration
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		PageSize:          100,
		MaxPages:          100,
		DefaultLookback:   30 * 24 * time.Hour,
		StaleLockTimeout:  time.Hour,
		TokenExpiryBuffer: 5 * time.Minute,
		ProgressInterval:  10,
		EnableAPILog:      true,
	}
}
