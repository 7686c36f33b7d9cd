package constants

import "time"

const (
	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// RolloverSpec fires at local midnight in the configured timezone.
	RolloverSpec = "0 0 * * *"

	// RolloverCheckInterval re-checks the day for machines that slept
	// through midnight.
	RolloverCheckInterval = 5 * time.Minute
)
