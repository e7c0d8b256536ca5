package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfigFile drops a JSON config into a temp dir and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pmms.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_DefaultsApply(t *testing.T) {
	path := writeConfigFile(t, `{"authentication": {"game_id": "starfall"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Common.TimeOutSeconds != 300 {
		t.Errorf("Expected time_out_seconds default 300, got %d", cfg.Common.TimeOutSeconds)
	}
	if cfg.Common.IPVersion != "v4" {
		t.Errorf("Expected ip_version default v4, got '%s'", cfg.Common.IPVersion)
	}
	if cfg.Common.Port != 57000 {
		t.Errorf("Expected port default 57000, got %d", cfg.Common.Port)
	}
	if cfg.Common.MaxConnectionPerThread != 1000 {
		t.Errorf("Expected max_connection_per_thread default 1000, got %d", cfg.Common.MaxConnectionPerThread)
	}
	if cfg.Common.Thread != 1 {
		t.Errorf("Expected thread default 1, got %d", cfg.Common.Thread)
	}
	if cfg.Common.MaxRoomCount != 1000 {
		t.Errorf("Expected max_room_count default 1000, got %d", cfg.Common.MaxRoomCount)
	}
	if cfg.Common.MaxPlayerPerRoom != 16 {
		t.Errorf("Expected max_player_per_room default 16, got %d", cfg.Common.MaxPlayerPerRoom)
	}
	if cfg.ConnectionTest.ConnectionCheckTCPTimeOutSeconds != 5 {
		t.Errorf("Expected tcp timeout default 5, got %d", cfg.ConnectionTest.ConnectionCheckTCPTimeOutSeconds)
	}
	if cfg.ConnectionTest.ConnectionCheckUDPTimeOutSeconds != 3 {
		t.Errorf("Expected udp timeout default 3, got %d", cfg.ConnectionTest.ConnectionCheckUDPTimeOutSeconds)
	}
	if cfg.ConnectionTest.ConnectionCheckUDPTryCount != 3 {
		t.Errorf("Expected udp try count default 3, got %d", cfg.ConnectionTest.ConnectionCheckUDPTryCount)
	}
	if cfg.Authentication.EnableGameVersionCheck {
		t.Error("Expected game version check disabled by default")
	}
	if cfg.Admin.EnableAdmin {
		t.Error("Expected admin listener disabled by default")
	}
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfigFile(t, `{
		"common": {"time_out_seconds": 30, "ip_version": "v6", "port": 58000, "thread": 2, "max_connection_per_thread": 50, "max_room_count": 10, "max_player_per_room": 8},
		"authentication": {"game_id": "starfall", "enable_game_version_check": true, "game_version": "1.0.0"},
		"log": {"enable_console_log": false, "enable_file_log": true, "file_log_level": "debug", "file_log_path": "/tmp/pmms.log"},
		"connection_test": {"connection_check_tcp_time_out_seconds": 2, "connection_check_udp_time_out_seconds": 1, "connection_check_udp_try_count": 5}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Common.TimeOutSeconds != 30 || cfg.Common.IPVersion != "v6" || cfg.Common.Port != 58000 {
		t.Errorf("common section not honored: %+v", cfg.Common)
	}
	if !cfg.Authentication.EnableGameVersionCheck || cfg.Authentication.GameVersion != "1.0.0" {
		t.Errorf("authentication section not honored: %+v", cfg.Authentication)
	}
	if cfg.Log.EnableConsoleLog || !cfg.Log.EnableFileLog || cfg.Log.FileLogLevel != "debug" {
		t.Errorf("log section not honored: %+v", cfg.Log)
	}
	if cfg.ConnectionTest.ConnectionCheckUDPTryCount != 5 {
		t.Errorf("connection_test section not honored: %+v", cfg.ConnectionTest)
	}
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := writeConfigFile(t, `{"common": {"port": 57001}, "authentication": {"game_id": "starfall"}}`)
	t.Setenv("PMMS_COMMON_PORT", "57002")
	t.Setenv("PMMS_AUTHENTICATION_GAME_ID", "moonrise")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Common.Port != 57002 {
		t.Errorf("Expected env port 57002 to win, got %d", cfg.Common.Port)
	}
	if cfg.Authentication.GameID != "moonrise" {
		t.Errorf("Expected env game_id to win, got '%s'", cfg.Authentication.GameID)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("PMMS_AUTHENTICATION_GAME_ID", "starfall")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Authentication.GameID != "starfall" {
		t.Errorf("Expected game_id from env, got '%s'", cfg.Authentication.GameID)
	}
}

func TestLoad_MissingGameID(t *testing.T) {
	path := writeConfigFile(t, `{}`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected error for missing game_id, got nil")
	}
	if !strings.Contains(err.Error(), "game_id") {
		t.Errorf("Expected error message about game_id, got: %v", err)
	}
}

func TestLoad_OutOfRangeValues(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"timeout low", `{"common": {"time_out_seconds": 0}, "authentication": {"game_id": "g"}}`, "time_out_seconds"},
		{"timeout high", `{"common": {"time_out_seconds": 3601}, "authentication": {"game_id": "g"}}`, "time_out_seconds"},
		{"bad ip version", `{"common": {"ip_version": "v5"}, "authentication": {"game_id": "g"}}`, "ip_version"},
		{"port high", `{"common": {"port": 65536}, "authentication": {"game_id": "g"}}`, "port"},
		{"thread low", `{"common": {"thread": 0}, "authentication": {"game_id": "g"}}`, "thread"},
		{"players high", `{"common": {"max_player_per_room": 256}, "authentication": {"game_id": "g"}}`, "max_player_per_room"},
		{"game_id long", `{"authentication": {"game_id": "this game id is way past twenty-four bytes"}}`, "game_id"},
		{"udp tries high", `{"authentication": {"game_id": "g"}, "connection_test": {"connection_check_udp_try_count": 101}}`, "udp_try_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tt.json))
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestLoad_AllErrorsReportedAtOnce(t *testing.T) {
	path := writeConfigFile(t, `{"common": {"time_out_seconds": 0, "thread": 0}}`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}
	for _, want := range []string{"time_out_seconds", "thread", "game_id"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected combined error to mention %q, got: %v", want, err)
		}
	}
}

func TestLoad_GameVersionRequiredWhenCheckEnabled(t *testing.T) {
	path := writeConfigFile(t, `{"authentication": {"game_id": "g", "enable_game_version_check": true}}`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "game_version") {
		t.Errorf("Expected game_version error, got: %v", err)
	}
}

func TestLoad_FileLogPathRequired(t *testing.T) {
	path := writeConfigFile(t, `{"authentication": {"game_id": "g"}, "log": {"enable_file_log": true}}`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "file_log_path") {
		t.Errorf("Expected file_log_path error, got: %v", err)
	}
}

func TestLoad_BadLogLevel(t *testing.T) {
	path := writeConfigFile(t, `{"authentication": {"game_id": "g"}, "log": {"console_log_level": "verbose"}}`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "console_log_level") {
		t.Errorf("Expected console_log_level error, got: %v", err)
	}
}

func TestLoad_UnparseableEnv(t *testing.T) {
	t.Setenv("PMMS_AUTHENTICATION_GAME_ID", "g")
	t.Setenv("PMMS_COMMON_PORT", "not-a-number")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "PMMS_COMMON_PORT") {
		t.Errorf("Expected PMMS_COMMON_PORT error, got: %v", err)
	}
}

func TestLoad_UnparseableEnvBool(t *testing.T) {
	t.Setenv("PMMS_AUTHENTICATION_GAME_ID", "g")
	t.Setenv("PMMS_ADMIN_ENABLE_ADMIN", "yes please")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "PMMS_ADMIN_ENABLE_ADMIN") {
		t.Errorf("Expected PMMS_ADMIN_ENABLE_ADMIN error, got: %v", err)
	}
}

func TestLoad_BadJSONFile(t *testing.T) {
	path := writeConfigFile(t, `{"common": `)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Expected parse error, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Expected read error, got: %v", err)
	}
}

func TestDerivedAccessors(t *testing.T) {
	common := CommonConfig{TimeOutSeconds: 300, IPVersion: "v4", Port: 57000}
	if common.Timeout() != 300*time.Second {
		t.Errorf("Timeout() = %v", common.Timeout())
	}
	if common.Network() != "tcp4" {
		t.Errorf("Network() = %s", common.Network())
	}
	if common.UDPNetwork() != "udp4" {
		t.Errorf("UDPNetwork() = %s", common.UDPNetwork())
	}
	if common.ListenAddr() != ":57000" {
		t.Errorf("ListenAddr() = %s", common.ListenAddr())
	}

	common.IPVersion = "v6"
	if common.Network() != "tcp6" {
		t.Errorf("Network() = %s", common.Network())
	}
	if common.UDPNetwork() != "udp6" {
		t.Errorf("UDPNetwork() = %s", common.UDPNetwork())
	}

	ct := ConnectionTestConfig{ConnectionCheckTCPTimeOutSeconds: 5, ConnectionCheckUDPTimeOutSeconds: 3}
	if ct.TCPTimeout() != 5*time.Second || ct.UDPTimeout() != 3*time.Second {
		t.Errorf("probe timeouts wrong: %v %v", ct.TCPTimeout(), ct.UDPTimeout())
	}
}

func TestLoggingConfigConversion(t *testing.T) {
	lc := LogConfig{
		EnableConsoleLog: true,
		ConsoleLogLevel:  "warning",
		EnableFileLog:    true,
		FileLogLevel:     "error",
		FileLogPath:      "/tmp/pmms.log",
	}
	got := lc.LoggingConfig()
	if !got.EnableConsoleLog || !got.EnableFileLog {
		t.Error("enable flags not carried over")
	}
	if got.FileLogPath != "/tmp/pmms.log" {
		t.Errorf("FileLogPath = %s", got.FileLogPath)
	}
}
