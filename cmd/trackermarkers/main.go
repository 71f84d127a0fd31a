package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/spf13/afero"

	"github.com/jangxx/UniversalTrackerMarkers/internal/config"
	"github.com/jangxx/UniversalTrackerMarkers/internal/dispatcher"
	"github.com/jangxx/UniversalTrackerMarkers/internal/engine"
	"github.com/jangxx/UniversalTrackerMarkers/internal/logging"
	"github.com/jangxx/UniversalTrackerMarkers/internal/model"
	"github.com/jangxx/UniversalTrackerMarkers/internal/monitor"
	intOtel "github.com/jangxx/UniversalTrackerMarkers/internal/otel"
	"github.com/jangxx/UniversalTrackerMarkers/internal/remote"
	"github.com/jangxx/UniversalTrackerMarkers/internal/vr/simvr"
)

// BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "tracker-markers"
)

var (
	// ConfigDir holds config.json and is the base for relative paths in it.
	ConfigDir string

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	// configRevision counts config reloads and is attached to every log record.
	configRevision atomic.Int64

	logFile     *os.File
	otelLogFile *os.File

	// GraylogWriter is the GELF writer, nil unless graylog.address is set
	GraylogWriter *gelf.Writer
)

func main() {
	args := os.Args[1:]

	if len(args) > 0 && strings.ToLower(args[0]) == "toggle" {
		if err := sendToggle(args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	dir, err := resolveConfigDir(args)
	if err != nil {
		return err
	}
	ConfigDir = dir

	haveFile, err := loadConfig(dir)
	if err != nil {
		return err
	}

	if err := initLogging(); err != nil {
		return err
	}
	defer shutdownLogging()

	Logger.Info("Starting up...", "version", CurrentVersion, "build", BuildDate, "configDir", dir, "configFile", haveFile)

	store, err := initStorage()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			Logger.Warn("Closing device store failed", "error", err)
		}
	}()

	markers, err := loadMarkers()
	if err != nil {
		return err
	}

	rt := simvr.New()
	seedSimulation(rt, markers)

	eng, err := engine.New(engine.Dependencies{
		Runtime:      rt,
		Fs:           afero.NewOsFs(),
		Labels:       simvr.NewTextures(),
		Store:        store,
		Logger:       Logger,
		TickInterval: config.GetDuration("tickInterval"),
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			Logger.Warn("Closing engine failed", "error", err)
		}
	}()

	events, err := dispatcher.New(Logger)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	defer events.Close()
	registerHandlers(events, eng)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := events.Dispatch(dispatcher.Event{Command: dispatcher.CmdReconcile}); err != nil {
		return err
	}
	eng.Start(ctx)

	if haveFile {
		config.Watch(func() {
			configRevision.Add(1)
			if _, err := events.Dispatch(dispatcher.Event{Command: dispatcher.CmdReconcile}); err != nil {
				Logger.Warn("Queueing config reload failed", "error", err)
			}
		})
	}

	go rescanOnHangup(ctx, events)

	oscDone := startOSC(ctx, events)

	status, err := startMonitor(eng)
	if err != nil {
		return err
	}
	if status != nil {
		defer status.Stop()
	}

	<-ctx.Done()
	Logger.Info("Shutting down...")

	eng.Stop()
	if oscDone != nil {
		<-oscDone
	}
	return nil
}

// resolveConfigDir returns the first CLI argument or the per-user default.
func resolveConfigDir(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return filepath.Abs(args[0])
	}
	return config.DefaultDir()
}

// loadConfig reads config.json from dir. A missing file falls back to the
// defaults, reported as haveFile=false.
func loadConfig(dir string) (haveFile bool, err error) {
	err = config.Load(dir)
	if err == nil {
		return true, nil
	}
	if config.IsNotFound(err) {
		config.LoadDefaults()
		return false, nil
	}
	return false, err
}

// resolvePath makes p relative to base unless it is absolute.
func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// loadMarkers reads the marker list and resolves relative texture paths
// against the config dir, like every other path in config.json.
func loadMarkers() ([]model.Marker, error) {
	markers, err := config.GetMarkers()
	if err != nil {
		return nil, err
	}
	for i := range markers {
		if p := markers[i].TexturePath; p != nil {
			abs := resolvePath(ConfigDir, *p)
			markers[i].TexturePath = &abs
		}
	}
	return markers, nil
}

// rescanOnHangup queues a reconcile, which re-enumerates devices, on every
// SIGHUP until ctx ends.
func rescanOnHangup(ctx context.Context, d *dispatcher.Dispatcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			Logger.Info("Rescanning devices")
			if _, err := d.Dispatch(dispatcher.Event{Command: dispatcher.CmdReconcile}); err != nil && !errors.Is(err, dispatcher.ErrClosed) {
				Logger.Warn("Queueing device rescan failed", "error", err)
			}
		}
	}
}

func initLogging() error {
	logsDir := resolvePath(ConfigDir, config.GetString("logsDir"))

	f, err := logging.OpenLogFile(logsDir, AppName, SessionStartTime)
	if err != nil {
		return err
	}
	logFile = f

	otelCfg := config.GetOTelConfig()
	cfg := intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	}
	if otelCfg.Enabled {
		otelLogFile, err = logging.OpenLogFile(logsDir, AppName+".otel", SessionStartTime)
		if err != nil {
			return err
		}
		cfg.LogWriter = otelLogFile
	}

	OTelProvider, err = intOtel.New(cfg)
	if err != nil {
		return fmt.Errorf("creating otel provider: %w", err)
	}

	opts := logging.Options{
		File:     logFile,
		Level:    config.GetString("logLevel"),
		Format:   config.GetString("logFormat"),
		Provider: OTelProvider.LoggerProvider(),
		Context: func() []slog.Attr {
			return []slog.Attr{slog.Int64("configRevision", configRevision.Load())}
		},
	}

	if addr := config.GetString("graylog.address"); addr != "" {
		GraylogWriter, err = gelf.NewWriter(addr)
		if err != nil {
			return fmt.Errorf("creating graylog writer: %w", err)
		}
		GraylogWriter.Facility = AppName
		opts.Remote = GraylogWriter
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(opts)
	Logger = SlogManager.Logger()
	return nil
}

func shutdownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if SlogManager != nil {
		_ = SlogManager.Flush(ctx)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	if GraylogWriter != nil {
		GraylogWriter.Close()
	}
	if otelLogFile != nil {
		otelLogFile.Close()
	}
	if logFile != nil {
		logFile.Close()
	}
}

func registerHandlers(d *dispatcher.Dispatcher, eng *engine.Engine) {
	d.Register(dispatcher.CmdReconcile, func(e dispatcher.Event) (any, error) {
		markers, err := loadMarkers()
		if err != nil {
			return nil, err
		}
		_ = eng.RefreshDevices()
		if err := eng.SetSerialLabelsShown(config.GetBool("showSerials")); err != nil {
			Logger.Warn("Updating serial labels failed", "error", err)
		}
		return nil, eng.UpdateOverlays(markers)
	}, dispatcher.Buffered(4), dispatcher.Blocking(), dispatcher.Logged())

	d.Register(dispatcher.CmdToggle, func(e dispatcher.Event) (any, error) {
		if len(e.Args) != 2 {
			return nil, fmt.Errorf("toggle: want 2 args, got %d", len(e.Args))
		}
		value, err := strconv.ParseBool(e.Args[1])
		if err != nil {
			return nil, fmt.Errorf("toggle: %w", err)
		}
		return nil, eng.HandleRemoteToggle(e.Args[0], value)
	}, dispatcher.Buffered(64))
}

// startOSC runs the toggle listener when enabled. The returned channel is
// closed once the listener has exited.
func startOSC(ctx context.Context, d *dispatcher.Dispatcher) <-chan struct{} {
	oscCfg := config.GetOSCConfig()
	if !oscCfg.Enabled || oscCfg.ListenAddress == "" {
		return nil
	}

	listener, err := remote.Listen(oscCfg.Addr(), func(address string, value bool) {
		_, err := d.Dispatch(dispatcher.Event{
			Command: dispatcher.CmdToggle,
			Args:    []string{address, strconv.FormatBool(value)},
		})
		if err != nil && !errors.Is(err, dispatcher.ErrClosed) {
			Logger.Warn("Dropping remote toggle", "address", address, "error", err)
		}
	}, Logger)
	if err != nil {
		Logger.Error("OSC listener could not start", "addr", oscCfg.Addr(), "error", err)
		return nil
	}
	Logger.Info("OSC listener started", "addr", listener.Addr().String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := listener.Serve(ctx); err != nil {
			Logger.Error("OSC listener crashed", "error", err)
		}
	}()
	return done
}

// statusReport is what the status file carries.
type statusReport struct {
	Version string                `json:"version"`
	Engine  engine.Status         `json:"engine"`
	Devices []engine.DeviceStatus `json:"devices"`
}

func startMonitor(eng *engine.Engine) (*monitor.Service, error) {
	statusCfg := config.GetStatusConfig()
	if !statusCfg.Enabled {
		return nil, nil
	}

	svc, err := monitor.NewService(monitor.Dependencies{
		Status: func() any {
			return statusReport{Version: CurrentVersion, Engine: eng.Status(), Devices: eng.ListDevices()}
		},
		Path:     resolvePath(ConfigDir, statusCfg.Path),
		Interval: statusCfg.Interval,
		Logger:   Logger,
	})
	if err != nil {
		return nil, err
	}
	svc.Start()
	return svc, nil
}
