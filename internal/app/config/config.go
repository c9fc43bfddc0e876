package config

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"wazmeow/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// EnvConfigFile names the optional YAML configuration file
const EnvConfigFile = "WAZMEOW_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp" json:"whatsapp"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`

	// File is the YAML file the configuration was read from, if any.
	File string `yaml:"-" json:"-"`
}

// StorageConfig selects and tunes the storage backend
type StorageConfig struct {
	Backend         string        `yaml:"backend" json:"backend" validate:"oneof=sqlite postgres"`
	Path            string        `yaml:"path" json:"path" validate:"required_if=Backend sqlite"`
	DSN             string        `yaml:"dsn" json:"-"`
	Debug           bool          `yaml:"debug" json:"debug"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" validate:"min=0"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" validate:"min=0"`

	// DB is a caller supplied handle for the postgres backend.
	DB *sql.DB `yaml:"-" json:"-" validate:"-"`
}

// WhatsAppConfig holds WhatsApp client and session lifecycle configuration
type WhatsAppConfig struct {
	AuthDir            string        `yaml:"auth_dir" json:"auth_dir" validate:"required"`
	Debug              bool          `yaml:"debug" json:"debug"`
	LogLevel           string        `yaml:"log_level" json:"log_level" validate:"oneof=DEBUG INFO WARN ERROR"`
	ClientName         string        `yaml:"client_name" json:"client_name" validate:"required"`
	ClientPlatform     string        `yaml:"client_platform" json:"client_platform" validate:"oneof=chrome firefox safari edge desktop"`
	ClientVersion      string        `yaml:"client_version" json:"client_version"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" json:"connect_timeout" validate:"gt=0"`
	MaxRetries         int           `yaml:"max_retries" json:"max_retries" validate:"min=0"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay" json:"retry_base_delay" validate:"gt=0"`
	RetryMaxDelay      time.Duration `yaml:"retry_max_delay" json:"retry_max_delay" validate:"gtefield=RetryBaseDelay"`
	ResetDelay         time.Duration `yaml:"reset_delay" json:"reset_delay" validate:"min=0"`
	Reconnect          bool          `yaml:"reconnect" json:"reconnect"`
	AutoStart          bool          `yaml:"auto_start" json:"auto_start"`
	StartupStagger     time.Duration `yaml:"startup_stagger" json:"startup_stagger" validate:"min=0"`
	DefaultCountryCode string        `yaml:"default_country_code" json:"default_country_code" validate:"omitempty,numeric"`
	QR                 QRConfig      `yaml:"qr" json:"qr"`
}

// QRConfig controls how pairing QR codes are rendered
type QRConfig struct {
	Output     string `yaml:"output" json:"output"`
	Width      int    `yaml:"width" json:"width" validate:"min=64,max=2048"`
	Margin     int    `yaml:"margin" json:"margin" validate:"min=0,max=64"`
	DarkColor  string `yaml:"dark_color" json:"dark_color" validate:"hexcolor"`
	LightColor string `yaml:"light_color" json:"light_color" validate:"hexcolor"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" json:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format      string `yaml:"format" json:"format" validate:"oneof=json console"`
	ColorOutput bool   `yaml:"color_output" json:"color_output"`
	TimeFormat  string `yaml:"time_format" json:"time_format"`
	File        string `yaml:"file" json:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb" json:"max_size_mb" validate:"min=0"`
	MaxBackups  int    `yaml:"max_backups" json:"max_backups" validate:"min=0"`
	MaxAgeDays  int    `yaml:"max_age_days" json:"max_age_days" validate:"min=0"`
	Compress    bool   `yaml:"compress" json:"compress"`
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address" validate:"required_if=Enabled true"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:         BackendSQLite,
			Path:            "data/wazmeow.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		WhatsApp: WhatsAppConfig{
			AuthDir:            "data/auth",
			LogLevel:           "INFO",
			ClientName:         "WazMeow",
			ClientPlatform:     "chrome",
			ConnectTimeout:     30 * time.Second,
			MaxRetries:         5,
			RetryBaseDelay:     2 * time.Second,
			RetryMaxDelay:      60 * time.Second,
			ResetDelay:         3 * time.Second,
			Reconnect:          true,
			AutoStart:          true,
			StartupStagger:     500 * time.Millisecond,
			DefaultCountryCode: "62",
			QR: QRConfig{
				Output:     "terminal",
				Width:      256,
				Margin:     4,
				DarkColor:  "#000000",
				LightColor: "#ffffff",
			},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "console",
			ColorOutput: true,
			TimeFormat:  "2006-01-02 15:04:05",
			MaxSizeMB:   100,
			MaxBackups:  3,
			MaxAgeDays:  28,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
	}
}

// Load loads configuration from defaults, the optional YAML file named by
// WAZMEOW_CONFIG_FILE, the .env file and environment variables, in that
// order of precedence (last wins).
func Load() (*Config, error) {
	// Try to load .env file (optional)
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("Could not load .env file (it may not exist)")
	}
	return LoadFile(os.Getenv(EnvConfigFile))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		config.File = path
	}

	config.Storage = loadStorageConfig(config.Storage)
	config.WhatsApp = loadWhatsAppConfig(config.WhatsApp)
	config.Logging = loadLoggingConfig(config.Logging)
	config.Metrics = loadMetricsConfig(config.Metrics)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadStorageConfig(c StorageConfig) StorageConfig {
	return StorageConfig{
		Backend:         strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", c.Backend)),
		Path:            getEnvOrDefault("STORAGE_PATH", c.Path),
		DSN:             getEnvOrDefault("DATABASE_URL", c.DSN),
		Debug:           getEnvAsBoolOrDefault("DB_DEBUG", c.Debug),
		MaxOpenConns:    getEnvAsIntOrDefault("DB_MAX_OPEN_CONNS", c.MaxOpenConns),
		MaxIdleConns:    getEnvAsIntOrDefault("DB_MAX_IDLE_CONNS", c.MaxIdleConns),
		ConnMaxLifetime: getEnvAsDurationOrDefault("DB_CONN_MAX_LIFETIME", c.ConnMaxLifetime),
		ConnMaxIdleTime: getEnvAsDurationOrDefault("DB_CONN_MAX_IDLE_TIME", c.ConnMaxIdleTime),
		DB:              c.DB,
	}
}

func loadWhatsAppConfig(c WhatsAppConfig) WhatsAppConfig {
	return WhatsAppConfig{
		AuthDir:            getEnvOrDefault("WHATSAPP_AUTH_DIR", c.AuthDir),
		Debug:              getEnvAsBoolOrDefault("WHATSAPP_DEBUG", c.Debug),
		LogLevel:           strings.ToUpper(getEnvOrDefault("WHATSAPP_LOG_LEVEL", c.LogLevel)),
		ClientName:         getEnvOrDefault("WHATSAPP_CLIENT_NAME", c.ClientName),
		ClientPlatform:     strings.ToLower(getEnvOrDefault("WHATSAPP_CLIENT_PLATFORM", c.ClientPlatform)),
		ClientVersion:      getEnvOrDefault("WHATSAPP_CLIENT_VERSION", c.ClientVersion),
		ConnectTimeout:     getEnvAsDurationOrDefault("WHATSAPP_CONNECT_TIMEOUT", c.ConnectTimeout),
		MaxRetries:         getEnvAsIntOrDefault("WHATSAPP_MAX_RETRIES", c.MaxRetries),
		RetryBaseDelay:     getEnvAsDurationOrDefault("WHATSAPP_RETRY_BASE_DELAY", c.RetryBaseDelay),
		RetryMaxDelay:      getEnvAsDurationOrDefault("WHATSAPP_RETRY_MAX_DELAY", c.RetryMaxDelay),
		ResetDelay:         getEnvAsDurationOrDefault("WHATSAPP_RESET_DELAY", c.ResetDelay),
		Reconnect:          getEnvAsBoolOrDefault("WHATSAPP_RECONNECT", c.Reconnect),
		AutoStart:          getEnvAsBoolOrDefault("WHATSAPP_AUTO_START", c.AutoStart),
		StartupStagger:     getEnvAsDurationOrDefault("WHATSAPP_STARTUP_STAGGER", c.StartupStagger),
		DefaultCountryCode: getEnvOrDefault("WHATSAPP_DEFAULT_COUNTRY_CODE", c.DefaultCountryCode),
		QR: QRConfig{
			Output:     getEnvOrDefault("WHATSAPP_QR_OUTPUT", c.QR.Output),
			Width:      getEnvAsIntOrDefault("WHATSAPP_QR_WIDTH", c.QR.Width),
			Margin:     getEnvAsIntOrDefault("WHATSAPP_QR_MARGIN", c.QR.Margin),
			DarkColor:  getEnvOrDefault("WHATSAPP_QR_DARK_COLOR", c.QR.DarkColor),
			LightColor: getEnvOrDefault("WHATSAPP_QR_LIGHT_COLOR", c.QR.LightColor),
		},
	}
}

func loadLoggingConfig(c LoggingConfig) LoggingConfig {
	return LoggingConfig{
		Level:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", c.Level)),
		Format:      getEnvOrDefault("LOG_FORMAT", c.Format),
		ColorOutput: getEnvAsBoolOrDefault("LOG_COLOR_OUTPUT", c.ColorOutput),
		TimeFormat:  getEnvOrDefault("LOG_TIME_FORMAT", c.TimeFormat),
		File:        getEnvOrDefault("LOG_FILE", c.File),
		MaxSizeMB:   getEnvAsIntOrDefault("LOG_MAX_SIZE_MB", c.MaxSizeMB),
		MaxBackups:  getEnvAsIntOrDefault("LOG_MAX_BACKUPS", c.MaxBackups),
		MaxAgeDays:  getEnvAsIntOrDefault("LOG_MAX_AGE_DAYS", c.MaxAgeDays),
		Compress:    getEnvAsBoolOrDefault("LOG_COMPRESS", c.Compress),
	}
}

func loadMetricsConfig(c MetricsConfig) MetricsConfig {
	return MetricsConfig{
		Enabled: getEnvAsBoolOrDefault("METRICS_ENABLED", c.Enabled),
		Address: getEnvOrDefault("METRICS_ADDRESS", c.Address),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration. The first failing field is
// reported as a domain.ConfigError.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.NewConfigError(fe.Namespace(), fmt.Sprintf("failed on '%s' rule (value: %v)", fe.Tag(), fe.Value()))
		}
		return err
	}

	if _, err := domain.ParseQROutput(c.WhatsApp.QR.Output); err != nil {
		return err
	}
	if _, err := domain.ParseClientVersion(c.WhatsApp.ClientVersion); err != nil {
		return err
	}
	if c.Storage.Backend == BackendPostgres && c.Storage.DB == nil && c.Storage.DSN == "" {
		return domain.NewConfigError("storage.dsn", "postgres backend requires DATABASE_URL or an open handle")
	}

	return nil
}

// Helper functions
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
