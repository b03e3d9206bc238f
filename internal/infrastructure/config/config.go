package config

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is everything the rig core reads at startup.
type Config struct {
	Rig       RigConfig       `yaml:"rig"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// RigConfig describes the fixed device set of the test rig.
type RigConfig struct {
	ID string `yaml:"id"`

	// Valves is the number of valve state machines, addressed 1..Valves.
	Valves int `yaml:"valves"`

	// ValveNameFormat is a fmt pattern taking the 1-based valve number.
	ValveNameFormat string `yaml:"valve_name_format"`

	PumpName   string `yaml:"pump_name"`
	SensorName string `yaml:"sensor_name"`
}

// LedgerConfig locates the CSV ledgers. File names are joined onto Dir
// unless they are already absolute.
type LedgerConfig struct {
	Dir    string `yaml:"dir"`
	System string `yaml:"system"`
	Valve  string `yaml:"valve"`
	Pump   string `yaml:"pump"`
	Sensor string `yaml:"sensor"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig holds HTTP server timeouts in whole seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`

	// AcceptCommands subscribes to {prefix}/command and feeds the
	// command surface.
	AcceptCommands bool `yaml:"accept_commands"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains settings for the SQLite transition history.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// Retention is how long transition history is kept; rows older than
	// this are pruned hourly. Zero keeps everything.
	Retention time.Duration `yaml:"retention"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MonitorConfig controls the periodic poll loop. A zero interval disables it.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load builds the configuration in three layers: Default, then the YAML
// file at path, then ROBOJAR_* environment variables. The result is
// validated before it is returned.
//
// Parameters:
//   - path: YAML file to read
//
// Returns:
//   - *Config: Validated configuration
//   - error: Read, parse or validation failure
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the standard bench layout: three valves, one pump and
// one sensor, ledgers under ./Logs, HTTP on :8000 and the optional sinks
// off.
func Default() *Config {
	return &Config{
		Rig: RigConfig{
			ID:              "robojar-01",
			Valves:          3,
			ValveNameFormat: "Valve %d",
			PumpName:        "Main Pump",
			SensorName:      "Sensor",
		},
		Ledger: LedgerConfig{
			Dir:    "Logs",
			System: "SystemLog.csv",
			Valve:  "ValveLog.csv",
			Pump:   "PumpLog.csv",
			Sensor: "SensorLog.csv",
		},
		API: APIConfig{
			Enabled:  true,
			Host:     "0.0.0.0",
			Port:     8000,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		MQTT: MQTTConfig{
			Broker:      MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "robojar-core"},
			QoS:         1,
			TopicPrefix: "robojar",
			Reconnect:   MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		InfluxDB: InfluxDBConfig{Bucket: "robojar", BatchSize: 100, FlushInterval: 10},
		Database: DatabaseConfig{Path: "./data/robojar.db", WALMode: true, BusyTimeout: 5},
		Logging:  LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// envOverrides maps ROBOJAR_* variables onto fields. Unparseable numbers
// are ignored and the file value stands.
var envOverrides = map[string]func(cfg *Config, v string){
	"ROBOJAR_RIG_VALVES":     func(c *Config, v string) { setInt(&c.Rig.Valves, v) },
	"ROBOJAR_LEDGER_DIR":     func(c *Config, v string) { c.Ledger.Dir = v },
	"ROBOJAR_API_HOST":       func(c *Config, v string) { c.API.Host = v },
	"ROBOJAR_API_PORT":       func(c *Config, v string) { setInt(&c.API.Port, v) },
	"ROBOJAR_MQTT_HOST":      func(c *Config, v string) { c.MQTT.Broker.Host = v },
	"ROBOJAR_MQTT_USERNAME":  func(c *Config, v string) { c.MQTT.Auth.Username = v },
	"ROBOJAR_MQTT_PASSWORD":  func(c *Config, v string) { c.MQTT.Auth.Password = v },
	"ROBOJAR_INFLUXDB_TOKEN": func(c *Config, v string) { c.InfluxDB.Token = v },
	"ROBOJAR_DATABASE_PATH":  func(c *Config, v string) { c.Database.Path = v },
}

func applyEnvOverrides(cfg *Config) {
	for key, apply := range envOverrides {
		if v := os.Getenv(key); v != "" {
			apply(cfg, v)
		}
	}
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// Validate reports every problem at once, joined with "; ".
func (c *Config) Validate() error {
	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	require(c.Rig.ID != "", "rig.id is required")
	require(c.Rig.Valves >= 1, "rig.valves must be at least 1")
	require(c.Rig.ValveNameFormat == "" || strings.Contains(c.Rig.ValveNameFormat, "%d"),
		"rig.valve_name_format must contain %d")
	if dup := c.Rig.duplicateName(); dup != "" {
		require(false, fmt.Sprintf("rig device name %q is used more than once", dup))
	}
	require(c.Ledger.System != "", "ledger.system is required")
	require(!c.API.Enabled || (c.API.Port >= 1 && c.API.Port <= 65535),
		"api.port must be between 1 and 65535")
	require(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	require(!c.MQTT.Enabled || c.MQTT.TopicPrefix != "",
		"mqtt.topic_prefix is required when mqtt is enabled")
	require(!c.InfluxDB.Enabled || c.InfluxDB.URL != "",
		"influxdb.url is required when influxdb is enabled")
	require(!c.Database.Enabled || c.Database.Path != "",
		"database.path is required when database is enabled")
	require(c.Monitor.Interval >= 0, "monitor.interval must not be negative")
	require(c.Database.Retention >= 0, "database.retention must not be negative")

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LedgerPath resolves a ledger file name against Ledger.Dir. An empty name
// stays empty, which disables that ledger.
func (c *Config) LedgerPath(name string) string {
	if name == "" || filepath.IsAbs(name) || c.Ledger.Dir == "" {
		return name
	}
	return filepath.Join(c.Ledger.Dir, name)
}

func (t APITimeoutConfig) ReadTimeout() time.Duration  { return time.Duration(t.Read) * time.Second }
func (t APITimeoutConfig) WriteTimeout() time.Duration { return time.Duration(t.Write) * time.Second }
func (t APITimeoutConfig) IdleTimeout() time.Duration  { return time.Duration(t.Idle) * time.Second }

// duplicateName returns the first device name shared by two devices,
// compared case-insensitively, or "" when every name is distinct. Empty
// names resolve to the same defaults the controller applies.
func (r RigConfig) duplicateName() string {
	format := r.ValveNameFormat
	if format == "" || !strings.Contains(format, "%d") {
		format = "Valve %d"
	}
	names := make([]string, 0, max(r.Valves, 0)+2)
	for i := 1; i <= r.Valves; i++ {
		names = append(names, fmt.Sprintf(format, i))
	}
	names = append(names, cmp.Or(r.PumpName, "Main Pump"), cmp.Or(r.SensorName, "Sensor"))

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return name
		}
		seen[key] = struct{}{}
	}
	return ""
}
