package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/viper"

	"github.com/jangxx/UniversalTrackerMarkers/internal/model"
)

// FileName is the name of the configuration file inside the config directory.
const FileName = "config.json"

// ErrDuplicateMarkerID is returned by GetMarkers when two markers resolve
// to the same id.
var ErrDuplicateMarkerID = errors.New("duplicate marker id")

// OSCConfig holds the remote toggle listener settings
type OSCConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	ListenAddress string `json:"listenAddress" mapstructure:"listenAddress"`
	ListenPort    int    `json:"listenPort" mapstructure:"listenPort"`
}

// Addr returns host:port for the UDP listener.
func (c OSCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.ListenPort)
}

// StorageConfig holds known-device store settings
type StorageConfig struct {
	Type     string         `json:"type" mapstructure:"type"`
	Path     string         `json:"path" mapstructure:"path"`
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// PostgresConfig holds the connection settings of the postgres store
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslmode" mapstructure:"sslmode"`
}

// StatusConfig holds the status file writer settings
type StatusConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Path     string        `json:"path" mapstructure:"path"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// markerRecord is the on-disk marker layout. Field names follow the
// configuration files written by the desktop application.
type markerRecord struct {
	ID                       *int     `mapstructure:"Id"`
	Name                     string   `mapstructure:"Name"`
	Enabled                  *bool    `mapstructure:"Enabled"`
	TrackerSN                *string  `mapstructure:"TrackerSN"`
	TexturePath              *string  `mapstructure:"TexturePath"`
	OverlayOpacity           *float64 `mapstructure:"OverlayOpacity"`
	OverlayWidth             *float64 `mapstructure:"OverlayWidth"`
	OffsetX                  float64  `mapstructure:"OffsetX"`
	OffsetY                  float64  `mapstructure:"OffsetY"`
	OffsetZ                  float64  `mapstructure:"OffsetZ"`
	RotateX                  float64  `mapstructure:"RotateX"`
	RotateY                  float64  `mapstructure:"RotateY"`
	RotateZ                  float64  `mapstructure:"RotateZ"`
	ProximityFeaturesEnabled bool     `mapstructure:"ProximityFeaturesEnabled"`
	ProximityDevice          int      `mapstructure:"ProximityDevice"`
	ProximityFadeDistMin     *float64 `mapstructure:"ProximityFadeDistMin"`
	ProximityFadeDistMax     *float64 `mapstructure:"ProximityFadeDistMax"`
	OscEnabled               bool     `mapstructure:"OscEnabled"`
	OscAddress               *string  `mapstructure:"OscAddress"`
	OscStartHidden           bool     `mapstructure:"OscStartHidden"`
}

// DefaultDir returns the per-user configuration directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(base, "jangxx", "Universal Tracker Markers"), nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logFormat", "text")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("graylog.address", "")
	viper.SetDefault("tickInterval", "20ms")
	viper.SetDefault("showSerials", false)

	viper.SetDefault("osc.enabled", false)
	viper.SetDefault("osc.listenAddress", "127.0.0.1")
	viper.SetDefault("osc.listenPort", 37321)

	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.path", "devices.db")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "")
	viper.SetDefault("storage.postgres.database", "tracker_markers")
	viper.SetDefault("storage.postgres.sslmode", "disable")

	viper.SetDefault("status.enabled", false)
	viper.SetDefault("status.interval", "1s")
	viper.SetDefault("status.path", "status.json")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "tracker-markers")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("markers", []any{})
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// IsNotFound reports whether err means the config file does not exist.
func IsNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}

// LoadDefaults sets default values without reading a file, for running
// without any configuration.
func LoadDefaults() {
	setDefaults()
}

// Watch calls fn after every change of the config file. The new values are
// already loaded when fn runs.
func Watch(fn func()) {
	viper.OnConfigChange(func(fsnotify.Event) {
		fn()
	})
	viper.WatchConfig()
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetOSCConfig returns the remote toggle listener settings.
func GetOSCConfig() OSCConfig {
	return OSCConfig{
		Enabled:       viper.GetBool("osc.enabled"),
		ListenAddress: viper.GetString("osc.listenAddress"),
		ListenPort:    viper.GetInt("osc.listenPort"),
	}
}

// GetStorageConfig returns the known-device store settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Path: viper.GetString("storage.path"),
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetInt("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
			SSLMode:  viper.GetString("storage.postgres.sslmode"),
		},
	}
}

// GetStatusConfig returns the status file settings.
func GetStatusConfig() StatusConfig {
	return StatusConfig{
		Enabled:  viper.GetBool("status.enabled"),
		Interval: viper.GetDuration("status.interval"),
		Path:     viper.GetString("status.path"),
	}
}

// GetOTelConfig returns OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetMarkers decodes the marker list. Markers without an id are numbered
// by their position, starting at 1. Texture paths are returned as written.
func GetMarkers() ([]model.Marker, error) {
	var records []markerRecord
	if err := viper.UnmarshalKey("markers", &records); err != nil {
		return nil, fmt.Errorf("decoding markers: %w", err)
	}

	markers := make([]model.Marker, 0, len(records))
	seen := make(map[int]int, len(records))
	for i, r := range records {
		id := i + 1
		if r.ID != nil {
			id = *r.ID
		}
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: %d (markers %d and %d)", ErrDuplicateMarkerID, id, prev+1, i+1)
		}
		seen[id] = i
		markers = append(markers, r.toMarker(id))
	}
	return markers, nil
}

func (r markerRecord) toMarker(id int) model.Marker {
	m := model.NewMarker(id)

	m.Name = r.Name
	if r.Enabled != nil {
		m.Enabled = *r.Enabled
	}
	m.TrackerSerial = nonEmpty(r.TrackerSN)
	m.TexturePath = nonEmpty(r.TexturePath)
	if r.OverlayOpacity != nil {
		m.Opacity = *r.OverlayOpacity
	}
	if r.OverlayWidth != nil {
		m.Width = *r.OverlayWidth
	}
	m.Offset = mgl64.Vec3{r.OffsetX, r.OffsetY, r.OffsetZ}
	m.Rotation = mgl64.Vec3{r.RotateX, r.RotateY, r.RotateZ}

	m.Proximity.Enabled = r.ProximityFeaturesEnabled
	m.Proximity.Device = model.ProximityDevice(r.ProximityDevice)
	if r.ProximityFadeDistMin != nil {
		m.Proximity.FadeNear = *r.ProximityFadeDistMin
	}
	if r.ProximityFadeDistMax != nil {
		m.Proximity.FadeFar = *r.ProximityFadeDistMax
	}

	m.Gate.Enabled = r.OscEnabled
	if r.OscAddress != nil {
		m.Gate.Address = *r.OscAddress
	}
	m.Gate.StartHidden = r.OscStartHidden

	return m
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
