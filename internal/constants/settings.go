package constants

const (
	// Backend kinds
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"

	// Environment overrides
	EnvPrefix          = "HABITCOACH_"
	EnvBackend         = EnvPrefix + "BACKEND"
	EnvSQLitePath      = EnvPrefix + "SQLITE_PATH"
	EnvPostgresDSN     = EnvPrefix + "POSTGRES_DSN"
	EnvFirebaseProject = EnvPrefix + "FIREBASE_PROJECT"
	EnvFirebaseCreds   = EnvPrefix + "FIREBASE_CREDENTIALS"
	EnvFirebaseToken   = EnvPrefix + "FIREBASE_ID_TOKEN"
	EnvOwnerID         = EnvPrefix + "OWNER_ID"
	EnvTimezone        = EnvPrefix + "TIMEZONE"
	EnvLLMAPIKey       = EnvPrefix + "LLM_API_KEY"
	EnvLLMBaseURL      = EnvPrefix + "LLM_BASE_URL"
	EnvLLMModel        = EnvPrefix + "LLM_MODEL"
	EnvDebug           = EnvPrefix + "DEBUG"
	EnvMetricsAddr     = EnvPrefix + "METRICS_ADDR"
	EnvWindowDays      = EnvPrefix + "STREAK_WINDOW_DAYS"

	// Default settings values
	DefaultBackend  = BackendSQLite
	DefaultTimezone = "Local" // Use system local timezone by default
	DefaultOwnerID  = "local"
)
