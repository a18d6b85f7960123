package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// JWT
	JWTSecret      string
	JWTExpireHours int

	// API
	APIPort int

	// Backup orchestration
	BackupDir            string
	AllowedBackupDirs    []string
	MaxConcurrentBackups int
	MaxBackupSizeGB      int
	MaxBackupsPerUser    int
	PgDumpPath           string
	PgDumpTimeout        time.Duration
	CompressionEnabled   bool
	CompressionLevel     int
	EncryptionEnabled    bool

	// Retention
	RetentionDays      int
	MaxBackupsToKeep   int
	MaxStorageSizeGB   int
	AuditRetentionDays int
	CleanupSchedule    string
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte(os.Getenv("HOSTNAME") + string(rune(length))))
	}
	return hex.EncodeToString(bytes)
}

func Load() *Config {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateSecureSecret(32)
		log.Println("WARNING: JWT_SECRET not set - generated random secret. Sessions will not persist across restarts.")
	}

	dbPassword := getEnv("DB_PASSWORD", "")
	if dbPassword == "" {
		log.Println("WARNING: DB_PASSWORD not set - this is insecure for production!")
		dbPassword = "changeme"
	}

	redisPassword := getEnv("REDIS_PASSWORD", "")
	if redisPassword == "" {
		log.Println("WARNING: REDIS_PASSWORD not set - Redis is not secured!")
	}

	backupDir := getEnv("BACKUP_DIR", "/var/backups/evalboard")
	allowedDirs := strings.Split(getEnv("BACKUP_ALLOWED_DIRS", backupDir), ",")
	for i := range allowedDirs {
		allowedDirs[i] = strings.TrimSpace(allowedDirs[i])
	}

	return &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "evalboard"),
		DBPassword: dbPassword,
		DBName:     getEnv("DB_NAME", "evalboard"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: redisPassword,

		// JWT
		JWTSecret:      jwtSecret,
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 168),

		// API
		APIPort: getEnvInt("API_PORT", 8080),

		// Backup orchestration
		BackupDir:            backupDir,
		AllowedBackupDirs:    allowedDirs,
		MaxConcurrentBackups: getEnvInt("BACKUP_MAX_CONCURRENT", 2),
		MaxBackupSizeGB:      getEnvInt("BACKUP_MAX_SIZE_GB", 10),
		MaxBackupsPerUser:    getEnvInt("BACKUP_MAX_PER_USER", 10),
		PgDumpPath:           getEnv("PG_DUMP_PATH", "pg_dump"),
		PgDumpTimeout:        time.Duration(getEnvInt("PG_DUMP_TIMEOUT_SECONDS", 1800)) * time.Second,
		CompressionEnabled:   getEnvBool("BACKUP_COMPRESSION", true),
		CompressionLevel:     getEnvInt("BACKUP_COMPRESSION_LEVEL", 6),
		EncryptionEnabled:    getEnvBool("BACKUP_ENCRYPTION", false),

		// Retention
		RetentionDays:      getEnvInt("BACKUP_RETENTION_DAYS", 30),
		MaxBackupsToKeep:   getEnvInt("BACKUP_MAX_TO_KEEP", 30),
		MaxStorageSizeGB:   getEnvInt("BACKUP_MAX_STORAGE_GB", 50),
		AuditRetentionDays: getEnvInt("AUDIT_RETENTION_DAYS", 365),
		CleanupSchedule:    getEnv("BACKUP_CLEANUP_SCHEDULE", "0 3 * * *"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
