package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"lamparray-go/internal/backing"
	"lamparray-go/internal/device"
	"lamparray-go/internal/events"
	"lamparray-go/internal/hooks"
	"lamparray-go/internal/lamparray"
	"lamparray-go/internal/layout"
	"lamparray-go/internal/potentiometer"
	"lamparray-go/internal/store"
	"lamparray-go/internal/transport"
	"lamparray-go/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Transport struct {
		Type string `yaml:"type"` // "serial"
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"transport"`
	Device struct {
		Layout         string `yaml:"layout"`
		Kind           string `yaml:"kind"`
		Width          uint32 `yaml:"width"`
		Height         uint32 `yaml:"height"`
		Depth          uint32 `yaml:"depth"`
		UpdateInterval string `yaml:"update_interval"`
	} `yaml:"device"`
	Render struct {
		Type string `yaml:"type"` // "adalight" or "none"
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"render"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Hooks struct {
		Script string `yaml:"script"`
	} `yaml:"hooks"`
	Potentiometer struct {
		Enabled   bool     `yaml:"enabled"`
		Pins      []string `yaml:"pins"`
		Throttle  string   `yaml:"throttle"`
		OutputMin uint16   `yaml:"output_min"`
		OutputMax *uint16  `yaml:"output_max"`
		ADCMin    uint16   `yaml:"adc_min"`
		ADCMax    *uint16  `yaml:"adc_max"`
	} `yaml:"potentiometer"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	switch c.Transport.Type {
	case "serial":
		if c.Transport.Port == "" {
			return fmt.Errorf("transport.port is required")
		}
	default:
		return fmt.Errorf("unknown transport type: %q (supported: serial)", c.Transport.Type)
	}
	if c.Device.Layout == "" {
		return fmt.Errorf("device.layout is required")
	}
	if _, err := lamparray.ParseKind(c.Device.Kind); err != nil {
		return fmt.Errorf("device.kind: %w", err)
	}
	if _, err := time.ParseDuration(c.Device.UpdateInterval); err != nil {
		return fmt.Errorf("device.update_interval: %w", err)
	}
	switch c.Render.Type {
	case "none":
	case "adalight":
		if c.Render.Port == "" {
			return fmt.Errorf("render.port is required for adalight")
		}
	default:
		return fmt.Errorf("unknown render type: %q (supported: adalight, none)", c.Render.Type)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.Potentiometer.Enabled {
		if len(c.Potentiometer.Pins) == 0 {
			return fmt.Errorf("potentiometer.pins is required when potentiometer is enabled")
		}
		if len(c.Potentiometer.Pins) > 0xFF {
			return fmt.Errorf("potentiometer.pins: at most 255 pins")
		}
		if _, err := time.ParseDuration(c.Potentiometer.Throttle); err != nil {
			return fmt.Errorf("potentiometer.throttle: %w", err)
		}
		if *c.Potentiometer.ADCMax <= c.Potentiometer.ADCMin {
			return fmt.Errorf("potentiometer.adc_max must be above adc_min")
		}
	}
	return nil
}

// modelConfig converts the device section. validate has already checked it.
func (c *Config) modelConfig() layout.ModelConfig {
	kind, _ := lamparray.ParseKind(c.Device.Kind)
	interval, _ := time.ParseDuration(c.Device.UpdateInterval)
	return layout.ModelConfig{
		Kind:           kind,
		Width:          c.Device.Width,
		Height:         c.Device.Height,
		Depth:          c.Device.Depth,
		UpdateInterval: interval,
	}
}

// samplerConfig converts the potentiometer section. validate has already
// checked it.
func (c *Config) samplerConfig() potentiometer.Config {
	throttle, _ := time.ParseDuration(c.Potentiometer.Throttle)
	return potentiometer.Config{
		Throttle:  throttle,
		OutputMin: c.Potentiometer.OutputMin,
		OutputMax: *c.Potentiometer.OutputMax,
		ADCMin:    c.Potentiometer.ADCMin,
		ADCMax:    *c.Potentiometer.ADCMax,
	}
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if len(os.Args) > 1 && os.Args[1] == "ports" {
		listPorts(bootLogger)
		return
	}

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	// Create configured logger.
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("lamparrayd starting", "version", version)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(cfg *Config, logger *slog.Logger) error {
	l, err := layout.Load(cfg.Device.Layout, logger)
	if err != nil {
		return fmt.Errorf("load layout: %w", err)
	}

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	renderer, err := createRenderer(cfg, logger)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}

	bus := events.NewBus(logger)
	dev, err := device.New(l, cfg.modelConfig(), renderer, db, bus, logger)
	if err != nil {
		renderer.Close()
		return fmt.Errorf("create device: %w", err)
	}
	defer dev.Close()

	hookEngine, err := loadHooks(cfg, logger)
	if err != nil {
		return fmt.Errorf("load hooks: %w", err)
	}
	if hookEngine != nil {
		defer hookEngine.Close()
		if hookEngine.Has(hooks.HookLampInfo) {
			dev.SetInfoOverride(hookEngine)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	if cfg.Potentiometer.Enabled {
		sampler := newSampler(cfg, dev, hookEngine, logger)
		interval := cfg.samplerConfig().Throttle
		if interval <= 0 {
			interval = time.Millisecond
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sampler.Run(ctx, interval)
		}()
	}

	// Open the bridge port and start serving reports.
	logger.Info("opening transport", "type", cfg.Transport.Type, "port", cfg.Transport.Port, "baud", cfg.Transport.Baud)
	port, err := transport.OpenSerial(cfg.Transport.Port, cfg.Transport.Baud)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	link := transport.NewLink(port, dev.Router(), logger)
	linkDone := make(chan error, 1)
	go func() {
		linkDone <- link.Serve(ctx)
	}()

	// Start web server
	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts,
		web.WithVersion(version),
		web.WithLinkStats(link.Stats),
		web.WithFrameInterval(cfg.modelConfig().UpdateInterval),
	)
	webServer := web.NewServer(dev, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	// Start MQTT bridge (no-op when built with no_mqtt tag).
	mqtt := initMQTT(dev, cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var linkErr error
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig)
	case linkErr = <-linkDone:
		if linkErr == nil {
			linkErr = errors.New("transport closed")
		}
		logger.Error("transport stopped, shutting down", "err", linkErr)
	}
	signal.Stop(sigCh)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()

	cancel()
	// Closing the port unblocks a pending frame read.
	port.Close()
	if linkErr == nil {
		select {
		case <-linkDone:
		case <-time.After(2 * time.Second):
			logger.Warn("transport did not stop in time")
		}
	}
	wg.Wait()
	stats := link.Stats()
	logger.Info("transport closed", "frames", stats.Frames, "rejected", stats.Rejected, "bad_frames", stats.BadFrame)
	return linkErr
}

func createRenderer(cfg *Config, logger *slog.Logger) (backing.Renderer, error) {
	switch cfg.Render.Type {
	case "adalight":
		logger.Info("using Adalight renderer", "port", cfg.Render.Port, "baud", cfg.Render.Baud)
		return backing.OpenAdalight(cfg.Render.Port, cfg.Render.Baud)
	case "none", "":
		logger.Info("rendering disabled")
		return backing.NopRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown render type: %q (supported: adalight, none)", cfg.Render.Type)
	}
}

// loadHooks returns nil when no script is configured.
func loadHooks(cfg *Config, logger *slog.Logger) (*hooks.Engine, error) {
	if cfg.Hooks.Script == "" {
		return nil, nil
	}
	return hooks.Load(cfg.Hooks.Script, logger)
}

func newSampler(cfg *Config, dev *device.Device, hookEngine *hooks.Engine, logger *slog.Logger) *potentiometer.Sampler {
	sampler := potentiometer.NewSampler(potentiometer.NewIIOReader(cfg.Potentiometer.Pins), cfg.samplerConfig(), logger)
	sampler.OnUpdate(func(index uint8, value uint16) {
		dev.Events().Emit(events.Event{
			Type: events.EventPotentiometer,
			Data: events.PotentiometerData{Index: index, Value: value},
		})
	})
	if hookEngine != nil {
		if hookEngine.Has(hooks.HookPotentiometerMap) {
			sampler.SetMapper(hookEngine)
		}
		if hookEngine.Has(hooks.HookPotentiometerUpdate) {
			sampler.OnUpdate(hookEngine.PotentiometerUpdate)
		}
	}
	return sampler
}

func listPorts(logger *slog.Logger) {
	ports, err := transport.ListPorts()
	if err != nil {
		logger.Error("list ports", "err", err)
		os.Exit(1)
	}
	for _, p := range ports {
		fmt.Println(p)
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Transport.Type == "" {
		cfg.Transport.Type = "serial"
	}
	if cfg.Transport.Baud == 0 {
		cfg.Transport.Baud = 115200
	}
	if cfg.Device.Kind == "" {
		cfg.Device.Kind = "keyboard"
	}
	if cfg.Device.UpdateInterval == "" {
		cfg.Device.UpdateInterval = "16ms"
	}
	if cfg.Render.Type == "" {
		cfg.Render.Type = "none"
	}
	if cfg.Render.Baud == 0 {
		cfg.Render.Baud = 115200
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "lamparray.db"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "lamparray"
	}
	defaults := potentiometer.DefaultConfig()
	if cfg.Potentiometer.Throttle == "" {
		cfg.Potentiometer.Throttle = defaults.Throttle.String()
	}
	if cfg.Potentiometer.OutputMax == nil {
		cfg.Potentiometer.OutputMax = &defaults.OutputMax
	}
	if cfg.Potentiometer.ADCMax == nil {
		cfg.Potentiometer.ADCMax = &defaults.ADCMax
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
