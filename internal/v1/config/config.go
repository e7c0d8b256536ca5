// Package config loads server settings from an optional JSON file plus
// PMMS_* environment variables. Env wins for any individually set key.
// Every out-of-range or unparseable value is a startup fault.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pmms-project/pmms-server/internal/v1/logging"
)

// Config is the full validated configuration.
type Config struct {
	Common         CommonConfig         `json:"common"`
	Authentication AuthenticationConfig `json:"authentication"`
	Log            LogConfig            `json:"log"`
	ConnectionTest ConnectionTestConfig `json:"connection_test"`
	Admin          AdminConfig          `json:"admin"`
	Limits         LimitsConfig         `json:"limits"`
	Tracing        TracingConfig        `json:"tracing"`
}

// CommonConfig shapes the listener and the shared stores.
type CommonConfig struct {
	TimeOutSeconds         int    `json:"time_out_seconds"`
	IPVersion              string `json:"ip_version"`
	Port                   int    `json:"port"`
	MaxConnectionPerThread int    `json:"max_connection_per_thread"`
	Thread                 int    `json:"thread"`
	MaxRoomCount           int    `json:"max_room_count"`
	MaxPlayerPerRoom       int    `json:"max_player_per_room"`
}

// AuthenticationConfig gates the handshake.
type AuthenticationConfig struct {
	GameID                 string `json:"game_id"`
	EnableGameVersionCheck bool   `json:"enable_game_version_check"`
	GameVersion            string `json:"game_version"`
}

// LogConfig selects the log sinks.
type LogConfig struct {
	EnableConsoleLog bool   `json:"enable_console_log"`
	ConsoleLogLevel  string `json:"console_log_level"`
	EnableFileLog    bool   `json:"enable_file_log"`
	FileLogLevel     string `json:"file_log_level"`
	FileLogPath      string `json:"file_log_path"`
}

// ConnectionTestConfig bounds the connectivity prober.
type ConnectionTestConfig struct {
	ConnectionCheckTCPTimeOutSeconds int `json:"connection_check_tcp_time_out_seconds"`
	ConnectionCheckUDPTimeOutSeconds int `json:"connection_check_udp_time_out_seconds"`
	ConnectionCheckUDPTryCount       int `json:"connection_check_udp_try_count"`
}

// AdminConfig controls the optional HTTP listener serving health and
// metrics.
type AdminConfig struct {
	EnableAdmin bool `json:"enable_admin"`
	AdminPort   int  `json:"admin_port"`
}

// LimitsConfig controls per-IP accept throttling.
type LimitsConfig struct {
	EnableConnectionRateLimit bool   `json:"enable_connection_rate_limit"`
	ConnectionRate            string `json:"connection_rate"`
}

// TracingConfig controls the optional OTLP trace exporter.
type TracingConfig struct {
	EnableTracing bool   `json:"enable_tracing"`
	OTLPEndpoint  string `json:"otlp_endpoint"`
}

// Defaults returns the documented default for every key that has one.
// game_id has no default: it is the one required setting.
func Defaults() Config {
	return Config{
		Common: CommonConfig{
			TimeOutSeconds:         300,
			IPVersion:              "v4",
			Port:                   57000,
			MaxConnectionPerThread: 1000,
			Thread:                 1,
			MaxRoomCount:           1000,
			MaxPlayerPerRoom:       16,
		},
		Log: LogConfig{
			EnableConsoleLog: true,
			ConsoleLogLevel:  "info",
			FileLogLevel:     "info",
		},
		ConnectionTest: ConnectionTestConfig{
			ConnectionCheckTCPTimeOutSeconds: 5,
			ConnectionCheckUDPTimeOutSeconds: 3,
			ConnectionCheckUDPTryCount:       3,
		},
		Admin: AdminConfig{
			AdminPort: 57080,
		},
		Limits: LimitsConfig{
			ConnectionRate: "120-M",
		},
	}
}

// Load builds the configuration: defaults, then the JSON file at path (if
// any), then environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logValidatedConfig(&cfg)
	return &cfg, nil
}

// applyEnvOverrides maps PMMS_<SECTION>_<KEY> variables onto the struct.
func applyEnvOverrides(cfg *Config) error {
	var errors []string

	overrideInt(&cfg.Common.TimeOutSeconds, "PMMS_COMMON_TIME_OUT_SECONDS", &errors)
	overrideString(&cfg.Common.IPVersion, "PMMS_COMMON_IP_VERSION")
	overrideInt(&cfg.Common.Port, "PMMS_COMMON_PORT", &errors)
	overrideInt(&cfg.Common.MaxConnectionPerThread, "PMMS_COMMON_MAX_CONNECTION_PER_THREAD", &errors)
	overrideInt(&cfg.Common.Thread, "PMMS_COMMON_THREAD", &errors)
	overrideInt(&cfg.Common.MaxRoomCount, "PMMS_COMMON_MAX_ROOM_COUNT", &errors)
	overrideInt(&cfg.Common.MaxPlayerPerRoom, "PMMS_COMMON_MAX_PLAYER_PER_ROOM", &errors)

	overrideString(&cfg.Authentication.GameID, "PMMS_AUTHENTICATION_GAME_ID")
	overrideBool(&cfg.Authentication.EnableGameVersionCheck, "PMMS_AUTHENTICATION_ENABLE_GAME_VERSION_CHECK", &errors)
	overrideString(&cfg.Authentication.GameVersion, "PMMS_AUTHENTICATION_GAME_VERSION")

	overrideBool(&cfg.Log.EnableConsoleLog, "PMMS_LOG_ENABLE_CONSOLE_LOG", &errors)
	overrideString(&cfg.Log.ConsoleLogLevel, "PMMS_LOG_CONSOLE_LOG_LEVEL")
	overrideBool(&cfg.Log.EnableFileLog, "PMMS_LOG_ENABLE_FILE_LOG", &errors)
	overrideString(&cfg.Log.FileLogLevel, "PMMS_LOG_FILE_LOG_LEVEL")
	overrideString(&cfg.Log.FileLogPath, "PMMS_LOG_FILE_LOG_PATH")

	overrideInt(&cfg.ConnectionTest.ConnectionCheckTCPTimeOutSeconds, "PMMS_CONNECTION_TEST_CONNECTION_CHECK_TCP_TIME_OUT_SECONDS", &errors)
	overrideInt(&cfg.ConnectionTest.ConnectionCheckUDPTimeOutSeconds, "PMMS_CONNECTION_TEST_CONNECTION_CHECK_UDP_TIME_OUT_SECONDS", &errors)
	overrideInt(&cfg.ConnectionTest.ConnectionCheckUDPTryCount, "PMMS_CONNECTION_TEST_CONNECTION_CHECK_UDP_TRY_COUNT", &errors)

	overrideBool(&cfg.Admin.EnableAdmin, "PMMS_ADMIN_ENABLE_ADMIN", &errors)
	overrideInt(&cfg.Admin.AdminPort, "PMMS_ADMIN_ADMIN_PORT", &errors)

	overrideBool(&cfg.Limits.EnableConnectionRateLimit, "PMMS_LIMITS_ENABLE_CONNECTION_RATE_LIMIT", &errors)
	overrideString(&cfg.Limits.ConnectionRate, "PMMS_LIMITS_CONNECTION_RATE")

	overrideBool(&cfg.Tracing.EnableTracing, "PMMS_TRACING_ENABLE_TRACING", &errors)
	overrideString(&cfg.Tracing.OTLPEndpoint, "PMMS_TRACING_OTLP_ENDPOINT")

	if len(errors) > 0 {
		return fmt.Errorf("environment override failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

// validate checks every documented range. All problems are reported at
// once so an operator fixes the file in one pass.
func (c *Config) validate() error {
	var errors []string

	checkRange := func(name string, value, lo, hi int) {
		if value < lo || value > hi {
			errors = append(errors, fmt.Sprintf("%s must be between %d and %d (got %d)", name, lo, hi, value))
		}
	}

	checkRange("common.time_out_seconds", c.Common.TimeOutSeconds, 1, 3600)
	if c.Common.IPVersion != "v4" && c.Common.IPVersion != "v6" {
		errors = append(errors, fmt.Sprintf("common.ip_version must be v4 or v6 (got '%s')", c.Common.IPVersion))
	}
	checkRange("common.port", c.Common.Port, 0, 65535)
	checkRange("common.max_connection_per_thread", c.Common.MaxConnectionPerThread, 1, 65535)
	checkRange("common.thread", c.Common.Thread, 1, 65535)
	checkRange("common.max_room_count", c.Common.MaxRoomCount, 1, 65535)
	checkRange("common.max_player_per_room", c.Common.MaxPlayerPerRoom, 1, 255)

	if l := len(c.Authentication.GameID); l < 1 || l > 24 {
		errors = append(errors, fmt.Sprintf("authentication.game_id is required and must be 1..24 bytes (got %d)", l))
	}
	if len(c.Authentication.GameVersion) > 24 {
		errors = append(errors, fmt.Sprintf("authentication.game_version must be at most 24 bytes (got %d)", len(c.Authentication.GameVersion)))
	}
	if c.Authentication.EnableGameVersionCheck && c.Authentication.GameVersion == "" {
		errors = append(errors, "authentication.game_version is required when enable_game_version_check is true")
	}

	if _, err := logging.ParseLevel(c.Log.ConsoleLogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("log.console_log_level: %v", err))
	}
	if _, err := logging.ParseLevel(c.Log.FileLogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("log.file_log_level: %v", err))
	}
	if c.Log.EnableFileLog && c.Log.FileLogPath == "" {
		errors = append(errors, "log.file_log_path is required when enable_file_log is true")
	}

	checkRange("connection_test.connection_check_tcp_time_out_seconds", c.ConnectionTest.ConnectionCheckTCPTimeOutSeconds, 1, 3600)
	checkRange("connection_test.connection_check_udp_time_out_seconds", c.ConnectionTest.ConnectionCheckUDPTimeOutSeconds, 1, 3600)
	checkRange("connection_test.connection_check_udp_try_count", c.ConnectionTest.ConnectionCheckUDPTryCount, 1, 100)

	checkRange("admin.admin_port", c.Admin.AdminPort, 0, 65535)
	if c.Limits.EnableConnectionRateLimit && c.Limits.ConnectionRate == "" {
		errors = append(errors, "limits.connection_rate is required when enable_connection_rate_limit is true")
	}
	if c.Tracing.EnableTracing && c.Tracing.OTLPEndpoint == "" {
		errors = append(errors, "tracing.otlp_endpoint is required when enable_tracing is true")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

// --- Derived accessors ---

// Timeout is the per-read and per-write socket deadline.
func (c CommonConfig) Timeout() time.Duration {
	return time.Duration(c.TimeOutSeconds) * time.Second
}

// Network returns the listener network for the configured IP version.
func (c CommonConfig) Network() string {
	if c.IPVersion == "v6" {
		return "tcp6"
	}
	return "tcp4"
}

// UDPNetwork returns the probe socket network for the configured IP
// version.
func (c CommonConfig) UDPNetwork() string {
	if c.IPVersion == "v6" {
		return "udp6"
	}
	return "udp4"
}

// ListenAddr returns the bind address of the game listener.
func (c CommonConfig) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// TCPTimeout bounds one TCP probe.
func (c ConnectionTestConfig) TCPTimeout() time.Duration {
	return time.Duration(c.ConnectionCheckTCPTimeOutSeconds) * time.Second
}

// UDPTimeout bounds one UDP probe attempt.
func (c ConnectionTestConfig) UDPTimeout() time.Duration {
	return time.Duration(c.ConnectionCheckUDPTimeOutSeconds) * time.Second
}

// LoggingConfig converts the section into the logging package's form.
// Levels were validated already; errors here cannot happen.
func (c LogConfig) LoggingConfig() logging.Config {
	consoleLevel, _ := logging.ParseLevel(c.ConsoleLogLevel)
	fileLevel, _ := logging.ParseLevel(c.FileLogLevel)
	return logging.Config{
		EnableConsoleLog: c.EnableConsoleLog,
		ConsoleLogLevel:  consoleLevel,
		EnableFileLog:    c.EnableFileLog,
		FileLogLevel:     fileLevel,
		FileLogPath:      c.FileLogPath,
	}
}

// --- Env helpers ---

func overrideString(target *string, key string) {
	if value, exists := os.LookupEnv(key); exists {
		*target = value
	}
}

func overrideInt(target *int, key string, errors *[]string) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("%s must be an integer (got '%s')", key, value))
		return
	}
	*target = parsed
}

func overrideBool(target *bool, key string, errors *[]string) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("%s must be a boolean (got '%s')", key, value))
		return
	}
	*target = parsed
}

// logValidatedConfig runs before the zap sinks exist, so it uses the
// default slog handler.
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Configuration validated successfully")
	slog.Info("Configuration",
		"game_id", redactSecret(cfg.Authentication.GameID),
		"ip_version", cfg.Common.IPVersion,
		"port", cfg.Common.Port,
		"thread", cfg.Common.Thread,
		"max_connection_per_thread", cfg.Common.MaxConnectionPerThread,
		"max_room_count", cfg.Common.MaxRoomCount,
		"max_player_per_room", cfg.Common.MaxPlayerPerRoom,
		"time_out_seconds", cfg.Common.TimeOutSeconds,
		"game_version_check", cfg.Authentication.EnableGameVersionCheck,
		"admin_enabled", cfg.Admin.EnableAdmin,
		"connection_rate_limit", cfg.Limits.EnableConnectionRateLimit,
	)
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
