package config

import (
	"strconv"
	"time"
)

const (
	pollIntervalVar = "POLL_INTERVAL_SECONDS"
	timeZoneVar     = "TIMEZONE"
	readOnlyVar     = "READ_ONLY"
)

type Sync struct{}

var _ SyncConfig = Sync{}

// GetPollInterval returns how often the change-flag endpoint is polled.
func (Sync) GetPollInterval() time.Duration {
	seconds, err := strconv.Atoi(GetEnv(pollIntervalVar, "3"))
	if err != nil || seconds <= 0 {
		seconds = 3
	}
	return time.Duration(seconds) * time.Second
}

// GetTimeZone returns an IANA zone name overriding the tenant's configured
// zone, or "" to use the tenant's.
func (Sync) GetTimeZone() string {
	return GetEnv(timeZoneVar, "")
}

// GetReadOnly reports whether the dashboard runs the read-only/demo view.
func (Sync) GetReadOnly() bool {
	readOnly, err := strconv.ParseBool(GetEnv(readOnlyVar, "false"))
	if err != nil {
		return false
	}
	return readOnly
}
