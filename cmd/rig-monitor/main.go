// Command rig-monitor polls the LED rig, keeps its fault history and publishes
// faults and lifecycle events to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/ledrig-monitor/internal/command"
	"github.com/sweeney/ledrig-monitor/internal/config"
	"github.com/sweeney/ledrig-monitor/internal/device"
	"github.com/sweeney/ledrig-monitor/internal/gpio"
	"github.com/sweeney/ledrig-monitor/internal/history"
	"github.com/sweeney/ledrig-monitor/internal/logging"
	"github.com/sweeney/ledrig-monitor/internal/logic"
	"github.com/sweeney/ledrig-monitor/internal/mqtt"
	"github.com/sweeney/ledrig-monitor/internal/poller"
	"github.com/sweeney/ledrig-monitor/internal/status"
	"github.com/sweeney/ledrig-monitor/internal/web"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults apply when empty)")
	printState := flag.Bool("print-state", false, "Poll the rig once, print its state and exit")
	httpAddr := flag.String("http", "", `HTTP status address override ("off" disables)`)
	broker := flag.String("broker", "", `MQTT broker override ("off" disables)`)

	flag.Parse()

	if err := run(*configPath, *printState, *httpAddr, *broker); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func run(configPath string, printState bool, httpAddr, broker string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, httpAddr, broker)

	logger, err := logging.New(cfg.Log, nil)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	client, err := device.NewHTTPClient(device.HTTPConfig{
		BaseURL: cfg.Device.URL,
		Timeout: cfg.Device.Timeout,
		Logger:  logging.Component(logger, "device"),
	})
	if err != nil {
		return fmt.Errorf("init device client: %w", err)
	}

	// Print state mode
	if printState {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Device.Timeout)
		defer cancel()
		return printRigState(ctx, client, os.Stdout)
	}

	startTime := time.Now()

	// Deferred in reverse: mirror closes last, after the lamp is off.
	mirror, err := openMirror(context.Background(), cfg.History)
	if err != nil {
		return fmt.Errorf("open history mirror: %w", err)
	}
	store := history.New(context.Background(), mirror, logging.Component(logger, "history"),
		history.WithKey(cfg.History.Key),
		history.WithStartTime(startTime))
	defer store.Close()

	lamp := openLamp(cfg.GPIO, logger)
	defer lamp.Close()

	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = mqtt.Nop{}
	if cfg.MQTT.Broker != "" {
		publisher = mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Logger:   logging.Component(logger, "mqtt"),
		})
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(startTime, status.Config{
		PollMs:         cfg.Device.PollInterval.Milliseconds(),
		HeartbeatMs:    cfg.MQTT.Heartbeat.Milliseconds(),
		DeviceURL:      cfg.Device.URL,
		Broker:         cfg.MQTT.Broker,
		HTTPAddr:       cfg.HTTP.Addr,
		HistoryBackend: cfg.History.Backend,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetHistory(historySummary(store))

	p, err := poller.New(poller.Config{
		Interval: cfg.Device.PollInterval,
		Timeout:  cfg.Device.Timeout,
	}, client, poller.WithLogger(logging.Component(logger, "poller")))
	if err != nil {
		return fmt.Errorf("init poller: %w", err)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		logger.Warn().Err(err).Msg("failed to publish startup event")
	}

	var srv *web.Server
	if cfg.HTTP.Addr != "" {
		srv = web.New(cfg.HTTP.Addr, web.Deps{
			Tracker:        tracker,
			History:        store,
			Refresher:      p,
			Commander:      command.New(client, tracker, logging.Component(logger, "command")),
			Logger:         logging.Component(logger, "http"),
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		})
	}

	logger.Info().
		Str("device", cfg.Device.URL).
		Dur("poll", cfg.Device.PollInterval).
		Str("broker", cfg.MQTT.Broker).
		Dur("heartbeat", cfg.MQTT.Heartbeat).
		Str("history", cfg.History.Backend).
		Str("http", cfg.HTTP.Addr).
		Msg("started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	d := &daemon{
		poller:     p,
		store:      store,
		tracker:    tracker,
		publisher:  publisher,
		mqttStatus: publisher,
		lamp:       lamp,
		heartbeat:  cfg.MQTT.Heartbeat,
		now:        time.Now,
		logger:     logger,
	}

	results := make(chan poller.Result, 16)
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		defer close(results)
		return p.Run(ctx, results)
	})

	g.Go(func() error {
		err := runLoop(d, results, sigCh)
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("http shutdown")
			}
		}
		return err
	})

	if srv != nil {
		g.Go(func() error {
			logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// applyFlagOverrides applies command-line overrides on top of file and env config.
func applyFlagOverrides(cfg *config.Config, httpAddr, broker string) {
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	switch broker {
	case "":
	case "off":
		cfg.MQTT.Broker = ""
	default:
		cfg.MQTT.Broker = broker
	}
}

func openMirror(ctx context.Context, cfg config.HistoryConfig) (history.Mirror, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return history.NewFileMirror(cfg.Dir)
	case config.BackendNATS:
		return history.DialNATSMirror(ctx, cfg.NATSURL, cfg.NATSBucket)
	case config.BackendPostgres:
		return history.DialPostgresMirror(ctx, cfg.DatabaseURL)
	case config.BackendMemory:
		return history.NewMemoryMirror(), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

// openLamp returns the configured fault lamp. GPIO problems are not fatal:
// the monitor runs without a lamp.
func openLamp(cfg config.GPIOConfig, logger zerolog.Logger) gpio.Lamp {
	if !cfg.Enabled {
		return gpio.Nop{}
	}
	lamp, err := gpio.NewRealLamp(cfg.Chip, cfg.Line)
	if err != nil {
		logger.Warn().Err(err).Str("chip", cfg.Chip).Int("line", cfg.Line).Msg("fault lamp unavailable")
		return gpio.Nop{}
	}
	return lamp
}

// daemon is the state owned by the run loop.
type daemon struct {
	poller     *poller.Poller
	store      *history.Store
	tracker    *status.Tracker
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	lamp       gpio.Lamp
	heartbeat  time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	liveness  logic.Liveness
	lampKnown bool
	lampOn    bool
}

// runLoop consumes poll results until a signal arrives or results is closed.
// On a signal it stops the poller, drains what is left and publishes SHUTDOWN.
func runLoop(d *daemon, results <-chan poller.Result, sig <-chan os.Signal) error {
	if d.liveness == "" {
		d.liveness = logic.LivenessUp
	}

	for {
		select {
		case s := <-sig:
			d.logger.Info().Str("signal", s.String()).Msg("shutting down")
			d.poller.Close()
			for r := range results {
				d.handle(r)
			}
			d.shutdown(signalName(s))
			return nil

		case r, ok := <-results:
			if !ok {
				d.shutdown("STOPPED")
				return nil
			}
			d.handle(r)
		}
	}
}

func (d *daemon) handle(r poller.Result) {
	for _, e := range d.store.Observe(r.Faults, r.At) {
		d.logger.Info().
			Str("name", e.Name).
			Str("category", string(e.Category)).
			Msg("fault")
		if err := d.publisher.PublishFault(e); err != nil {
			// Don't crash on publish failure
			d.logger.Warn().Err(err).Str("name", e.Name).Msg("publish fault failed")
		}
	}

	d.tracker.Update(r)
	d.tracker.SetHistory(historySummary(d.store))
	d.tracker.SetSuppressed(d.poller.Suppressed())
	d.refreshMQTT()

	d.setLamp(len(r.Faults) > 0)

	if r.Liveness != d.liveness {
		d.liveness = r.Liveness
		reason := string(r.Liveness)
		snap := d.tracker.Snapshot()
		d.publishSystem(mqtt.SystemEvent{
			Timestamp:  r.At,
			Event:      mqtt.EventLiveness,
			Reason:     reason,
			RawPayload: status.FormatStatusEvent(snap, mqtt.EventLiveness, reason),
		})
	}

	if hb := d.store.CheckHeartbeat(r.At, d.heartbeat); hb != nil {
		d.logger.Info().
			Dur("uptime", hb.Uptime).
			Int("raised", hb.Counts.Raised).
			Int("cleared", hb.Counts.Cleared).
			Int("active", hb.Active).
			Msg("heartbeat")

		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			d.tracker.SetNetwork(net)
		}
		snap := d.tracker.Snapshot()
		d.publishSystem(mqtt.SystemEvent{
			Timestamp:  hb.Timestamp,
			Event:      mqtt.EventHeartbeat,
			RawPayload: status.FormatStatusEvent(snap, mqtt.EventHeartbeat, ""),
		})
	}
}

// setLamp drives the lamp only when the wanted state differs from the last
// successful write. A failed write is retried on the next poll.
func (d *daemon) setLamp(on bool) {
	if d.lampKnown && d.lampOn == on {
		return
	}
	if err := d.lamp.Set(on); err != nil {
		d.logger.Warn().Err(err).Bool("on", on).Msg("fault lamp write failed")
		d.lampKnown = false
		return
	}
	d.lampKnown = true
	d.lampOn = on
}

func (d *daemon) refreshMQTT() {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func (d *daemon) shutdown(reason string) {
	d.refreshMQTT()
	snap := d.tracker.Snapshot()
	d.publishSystem(mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      mqtt.EventShutdown,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventShutdown, reason),
	})
}

func (d *daemon) publishSystem(e mqtt.SystemEvent) {
	if err := d.publisher.PublishSystem(e); err != nil {
		d.logger.Warn().Err(err).Str("event", e.Event).Msg("publish system event failed")
		return
	}
	d.logger.Debug().Str("event", e.Event).Str("reason", e.Reason).Msg("published system event")
}

func historySummary(s *history.Store) status.History {
	return status.History{
		Count:    s.Len(),
		Degraded: s.Degraded(),
		Active:   s.ActiveCount(),
		Counts:   s.Counts(),
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// printRigState polls the rig once and writes a human summary to w.
// An unreachable rig is reported, not returned as an error.
func printRigState(ctx context.Context, client device.Client, w io.Writer) error {
	snap, err := client.Status(ctx)
	live := logic.LivenessUp
	if err != nil {
		live = logic.LivenessDown
		snap = nil
	}

	fmt.Fprintf(w, "Liveness: %s\n", live)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	if snap != nil {
		fmt.Fprintf(w, "Fault mode: %s\n", snap.FaultMode)
		fmt.Fprintf(w, "Operation mode: %s\n", logic.OperationModeFor(snap))
	}

	leds := logic.DeriveLEDs(snap)
	parts := make([]string, 0, len(logic.Channels))
	for _, c := range logic.Channels {
		parts = append(parts, c+"="+onOff(leds[c]))
	}
	fmt.Fprintf(w, "LEDs: %s\n", strings.Join(parts, " "))

	faults := logic.ExtractFaults(snap, live)
	if len(faults) == 0 {
		fmt.Fprintln(w, "Faults: none")
		return nil
	}
	fmt.Fprintln(w, "Faults:")
	for _, f := range faults {
		fmt.Fprintf(w, "  %s (%s): %s\n", f.Name, f.Category, f.Description)
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
