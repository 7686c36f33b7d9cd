package constants

import "time"

const (
	AppName           = "habitcoach"
	DefaultConfigDir  = "~/.config/habitcoach"
	DefaultConfigFile = "config.yaml"
	DefaultSQLitePath = "~/.config/habitcoach/habitcoach.db"
	Version           = "v0.1.0"

	// Document collections
	CollectionHabits      = "habits"
	CollectionCompletions = "completions"

	// Document field names shared by every docstore backend
	FieldOwnerID      = "ownerId"
	FieldName         = "name"
	FieldDescription  = "description"
	FieldCreatedAt    = "createdAt"
	FieldCachedStreak = "cachedStreak"
	FieldHabitID      = "habitId"
	FieldDay          = "day"
	FieldCompletedAt  = "completedAt"

	// StreakWindowDays bounds the completion query used to recompute a
	// habit's streak. Runs longer than the window are reported as the
	// window length and flagged with a stale-streak warning.
	StreakWindowDays = 365

	// TempIDPrefix marks provisional rows inserted before the backend
	// assigns an id.
	TempIDPrefix = "tmp-"

	// Partial delete retry policy
	DeleteMaxRetries = 3
	DeleteRetryDelay = 100 * time.Millisecond

	// Coach backend
	DefaultLLMBaseURL   = "https://api.together.xyz/v1"
	DefaultLLMModel     = "meta-llama/Llama-3.3-70B-Instruct-Turbo"
	CoachMaxRetries     = 3
	CoachRetryBaseDelay = 500 * time.Millisecond
	CoachRequestTimeout = 30 * time.Second
	CoachTopHabits      = 3

	// Keyring entries
	KeyringPostgresDSN  = "postgres-connection"
	KeyringLLMAPIKey    = "llm-api-key"
	KeyringFirebaseAuth = "firebase-id-token"

	// Postgres realtime channel
	PostgresNotifyChannel = "habitcoach_documents"
)
