package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// Bounds on the periodic sync interval (minutes). Settings outside this range
// are rejected as a validation error rather than clamped.
const (
	MinSyncIntervalMinutes = 5
	MaxSyncIntervalMinutes = 1440
)

const (
	defaultSyncIntervalMinutes  = 60
	defaultSyncPageSize         = 500
	defaultUpsertBatchSize      = 250
	defaultCascadeDepth         = 1
	defaultExclusionQueueSize   = 200
	defaultNumExclusionWorkers  = 4
	defaultMatchCandidateLimit  = 50
	defaultNearMatchMaxDistance = 8
)

type Config struct {
	// database path
	DatabasePath string

	// sync settings
	SyncIntervalMinutes int
	SyncPageSize        int
	UpsertBatchSize     int
	WebhookEnabled      bool
	PeriodicSyncEnabled bool

	// exclusion computation settings
	ExclusionCascadeDepth int
	ExclusionQueueSize    int
	NumExclusionWorkers   int

	// reconciliation settings
	MatchCandidateLimit  int
	NearMatchMaxDistance int // max hamming distance still reported as a near match

	// admin surface
	AdminToken string

	// HTTP
	Port       string
	CORSOrigin string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %t. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

// ValidateSyncInterval checks a requested interval against the allowed bounds.
func ValidateSyncInterval(minutes int) error {
	if minutes < MinSyncIntervalMinutes || minutes > MaxSyncIntervalMinutes {
		return fmt.Errorf("sync interval must be between %d and %d minutes, got %d",
			MinSyncIntervalMinutes, MaxSyncIntervalMinutes, minutes)
	}
	return nil
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "catalog.db")

	interval := getEnvIntOrDefault("SYNC_INTERVAL_MINUTES", defaultSyncIntervalMinutes)
	if err := ValidateSyncInterval(interval); err != nil {
		log.Printf("Warning: SYNC_INTERVAL_MINUTES out of range (%v). Using default %d.", err, defaultSyncIntervalMinutes)
		interval = defaultSyncIntervalMinutes
	}

	adminToken := os.Getenv("ADMIN_TOKEN")
	if adminToken == "" {
		return Config{}, fmt.Errorf("ADMIN_TOKEN must be set; the admin surface cannot run unauthenticated")
	}

	cfg := Config{
		DatabasePath:          dbPath,
		SyncIntervalMinutes:   interval,
		SyncPageSize:          getEnvIntOrDefault("SYNC_PAGE_SIZE", defaultSyncPageSize),
		UpsertBatchSize:       getEnvIntOrDefault("UPSERT_BATCH_SIZE", defaultUpsertBatchSize),
		WebhookEnabled:        getEnvBoolOrDefault("WEBHOOK_ENABLED", false),
		PeriodicSyncEnabled:   getEnvBoolOrDefault("PERIODIC_SYNC_ENABLED", true),
		ExclusionCascadeDepth: getEnvIntOrDefault("EXCLUSION_CASCADE_DEPTH", defaultCascadeDepth),
		ExclusionQueueSize:    getEnvIntOrDefault("EXCLUSION_QUEUE_SIZE", defaultExclusionQueueSize),
		NumExclusionWorkers:   getEnvIntOrDefault("NUM_EXCLUSION_WORKERS", defaultNumExclusionWorkers),
		MatchCandidateLimit:   getEnvIntOrDefault("MATCH_CANDIDATE_LIMIT", defaultMatchCandidateLimit),
		NearMatchMaxDistance:  getEnvIntOrDefault("NEAR_MATCH_MAX_DISTANCE", defaultNearMatchMaxDistance),
		AdminToken:            adminToken,
		Port:                  getEnvOrDefault("PORT", "8080"),
		CORSOrigin:            getEnvOrDefault("CORS_ORIGIN", "http://localhost:5173"),
	}

	return cfg, nil
}
