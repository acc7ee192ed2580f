// config.go: loads and exposes the application settings.
package conf

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// DeviceSettings holds the analytics device session configuration.
type DeviceSettings struct {
	IP          string        // device IP address
	Port        int           // device service port
	Username    string        // login user
	Password    string        // login password
	Simulate    bool          // use the in-process simulated driver
	CallTimeout time.Duration // fixed timeout for device-facing calls
	Channels    []int         // channels to start analyzers on at boot
}

// RecognitionSettings tunes the face recognition pipeline.
type RecognitionSettings struct {
	SimilarityThreshold int   // minimum candidate similarity for a significant recognition
	MaxImageSize        int64 // maximum accepted embedded image payload in bytes
	RecentEvents        int   // capacity of the recent-event buffer
}

// DispatchSettings tunes the real-time fan-out.
type DispatchSettings struct {
	HealthCheckInterval time.Duration // heartbeat broadcast interval
	QueueSize           int           // per-channel pipeline queue capacity
}

// ReportSettings tunes outward-facing aggregate queries.
type ReportSettings struct {
	QueryTimeout time.Duration // deadline for stats and report queries
}

// SQLiteSettings contains the SQLite output configuration.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings contains the MySQL output configuration.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     int
}

// OutputSettings selects the persistence backend.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// MQTTSettings configures the MQTT fan-out subscriber.
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	Topic    string
	Username string
	Password string
	Retain   bool
}

// WebServerSettings configures the HTTP/SSE server.
type WebServerSettings struct {
	Enabled bool
	Port    string
}

// LogConfig describes a rotated log file target.
type LogConfig struct {
	Enabled bool
	Path    string
}

// MainSettings holds application-wide options.
type MainSettings struct {
	Name string
	Log  LogConfig
}

// Settings is the root configuration structure.
type Settings struct {
	Debug bool

	Main        MainSettings
	Device      DeviceSettings
	Recognition RecognitionSettings
	Dispatch    DispatchSettings
	Report      ReportSettings
	Output      OutputSettings
	MQTT        MQTTSettings
	WebServer   WebServerSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file (or defaults) into a Settings instance
// and stores it as the package-level settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with defaults and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/visiongate")
	viper.AddConfigPath("/etc/visiongate")

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config file, defaults apply.
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// Setting returns the package-level settings instance, loading it on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	if _, err := Load(); err != nil {
		return nil
	}
	return settingsInstance
}
