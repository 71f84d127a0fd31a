package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jangxx/UniversalTrackerMarkers/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"tickInterval": "10ms",
		"Osc": { "Enabled": true, "ListenAddress": "0.0.0.0", "ListenPort": 9001 }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 10*time.Millisecond, GetDuration("tickInterval"))

	osc := GetOSCConfig()
	assert.True(t, osc.Enabled)
	assert.Equal(t, "0.0.0.0", osc.ListenAddress)
	assert.Equal(t, 9001, osc.ListenPort)
	assert.Equal(t, "0.0.0.0:9001", osc.Addr())
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "text", viper.GetString("logFormat"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "", viper.GetString("graylog.address"))
	assert.Equal(t, 20*time.Millisecond, viper.GetDuration("tickInterval"))
	assert.Equal(t, false, viper.GetBool("showSerials"))
	assert.Equal(t, false, viper.GetBool("osc.enabled"))
	assert.Equal(t, "127.0.0.1", viper.GetString("osc.listenAddress"))
	assert.Equal(t, 37321, viper.GetInt("osc.listenPort"))
	assert.Equal(t, "sqlite", viper.GetString("storage.type"))
	assert.Equal(t, "devices.db", viper.GetString("storage.path"))
	assert.Equal(t, false, viper.GetBool("status.enabled"))
	assert.Equal(t, "1s", viper.GetString("status.interval"))
	assert.Equal(t, "status.json", viper.GetString("status.path"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "tracker-markers", viper.GetString("otel.serviceName"))
	assert.Equal(t, "5s", viper.GetString("otel.batchTimeout"))
	assert.Equal(t, "", viper.GetString("otel.endpoint"))
	assert.Equal(t, true, viper.GetBool("otel.insecure"))

	markers, err := GetMarkers()
	require.NoError(t, err)
	assert.Empty(t, markers)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
	assert.True(t, IsNotFound(err))
}

func TestLoad_MalformedFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(writeConfig(t, `{"markers": [`))
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}

func TestLoadDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	LoadDefaults()
	assert.Equal(t, "127.0.0.1", GetOSCConfig().ListenAddress)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{"storage": {"type": "memory", "path": ""}}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "", cfg.Path)
	assert.Equal(t, 5432, cfg.Postgres.Port)
}

func TestGetStorageConfig_Postgres(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{"storage": {"type": "postgres", "postgres": {"host": "db", "port": 6543, "username": "u", "database": "dev"}}}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "postgres", cfg.Type)
	assert.Equal(t, PostgresConfig{Host: "db", Port: 6543, Username: "u", Database: "dev", SSLMode: "disable"}, cfg.Postgres)
}

func TestGetStatusConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{"status": {"enabled": true, "interval": "250ms", "path": "/tmp/s.json"}}`)))

	cfg := GetStatusConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval)
	assert.Equal(t, "/tmp/s.json", cfg.Path)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "tracker-markers", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
}

func TestGetMarkers(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"Markers": [
			{
				"Name": "Left foot",
				"Enabled": true,
				"TrackerSN": "LHR-AAAA",
				"TexturePath": "C:/markers/foot.png",
				"OverlayOpacity": 0.75,
				"OverlayWidth": 0.2,
				"OffsetX": 0.01, "OffsetY": 0.02, "OffsetZ": 0.03,
				"RotateX": 90, "RotateY": 0, "RotateZ": -45,
				"ProximityFeaturesEnabled": true,
				"ProximityDevice": 3,
				"ProximityFadeDistMin": 0.5,
				"ProximityFadeDistMax": 1.5,
				"OscEnabled": true,
				"OscAddress": "/avatar/parameters/foot",
				"OscStartHidden": true
			},
			{
				"Enabled": false,
				"TrackerSN": null,
				"TexturePath": ""
			}
		]
	}`)
	require.NoError(t, Load(dir))

	markers, err := GetMarkers()
	require.NoError(t, err)
	require.Len(t, markers, 2)

	foot := markers[0]
	assert.Equal(t, 1, foot.ID)
	assert.Equal(t, "Left foot", foot.Name)
	assert.True(t, foot.Enabled)
	require.True(t, foot.IsValid())
	assert.Equal(t, "LHR-AAAA", *foot.TrackerSerial)
	assert.Equal(t, "C:/markers/foot.png", *foot.TexturePath)
	assert.Equal(t, 0.75, foot.Opacity)
	assert.Equal(t, 0.2, foot.Width)
	assert.Equal(t, mgl64.Vec3{0.01, 0.02, 0.03}, foot.Offset)
	assert.Equal(t, mgl64.Vec3{90, 0, -45}, foot.Rotation)
	assert.Equal(t, model.Proximity{Enabled: true, Device: model.ProximityAnyHand, FadeNear: 0.5, FadeFar: 1.5}, foot.Proximity)
	assert.Equal(t, model.Gate{Enabled: true, Address: "/avatar/parameters/foot", StartHidden: true}, foot.Gate)

	empty := markers[1]
	assert.Equal(t, 2, empty.ID)
	assert.False(t, empty.Enabled)
	assert.False(t, empty.IsValid())
	assert.Equal(t, 1.0, empty.Opacity, "defaults apply to missing fields")
	assert.Equal(t, 2.0, empty.Proximity.FadeFar)
}

func TestGetMarkers_ExplicitID(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{"markers": [{"Id": 12, "TrackerSN": "X"}]}`)))

	markers, err := GetMarkers()
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, 12, markers[0].ID)
}

func TestGetMarkers_DuplicateID(t *testing.T) {
	t.Cleanup(viper.Reset)

	// the second marker is numbered 2 by position and clashes with the first
	require.NoError(t, Load(writeConfig(t, `{"markers": [{"Id": 2}, {"Name": "second"}]}`)))

	_, err := GetMarkers()
	assert.ErrorIs(t, err, ErrDuplicateMarkerID)
}

func TestDefaultDir(t *testing.T) {
	dir, err := DefaultDir()
	if err != nil {
		t.Skip("no user config dir in this environment")
	}
	assert.Equal(t, "Universal Tracker Markers", filepath.Base(dir))
}
