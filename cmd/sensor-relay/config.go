package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kirides/sensor-relay"
	"github.com/kirides/sensor-relay/dashboard"
	"github.com/kirides/sensor-relay/ingress/mqtt"
	"github.com/kirides/sensor-relay/transport/pipe"
)

// maxHistorySize keeps the largest snapshot (at most ~130 bytes per
// reading) well inside pipe.MaxFrameSize.
const maxHistorySize = 10000

type config struct {
	Debug       bool         `json:"debug"`
	HistorySize int          `json:"history_size"`
	HTTP        httpCnf      `json:"http"`
	MQTT        mqttCnf      `json:"mqtt"`
	Pipe        pipeCnf      `json:"pipe"`
	Viewer      viewerCnf    `json:"viewer"`
	Dashboard   dashboardCnf `json:"dashboard"`
}

type httpCnf struct {
	Listen     string  `json:"listen"`
	APIKey     string  `json:"api_key"`
	RatePerSec float64 `json:"rate_per_sec"`
	Burst      int     `json:"burst"`
	TrustProxy bool    `json:"trust_proxy"`
}

type mqttCnf struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	Topic    string `json:"topic"`
	QoS      byte   `json:"qos"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type pipeCnf struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type viewerCnf struct {
	QueueSize       int `json:"queue_size"`
	SendTimeoutSec  int `json:"send_timeout_sec"`
	PingIntervalSec int `json:"ping_interval_sec"`
}

type dashboardCnf struct {
	TemperatureAlert float64 `json:"temperature_alert"`
}

func defaultConfig() config {
	return config{
		HistorySize: relay.DefaultHistorySize,
		HTTP: httpCnf{
			Listen:     ":5000",
			RatePerSec: 5,
			Burst:      10,
		},
		MQTT: mqttCnf{
			Enabled: true,
			Broker:  mqtt.DefaultBroker,
			Topic:   mqtt.DefaultTopic,
			QoS:     mqtt.DefaultQoS,
		},
		Pipe: pipeCnf{
			Enabled: false,
			Path:    pipe.DefaultPath,
		},
		Viewer: viewerCnf{
			QueueSize:       relay.DefaultQueueSize,
			SendTimeoutSec:  int(relay.DefaultSendTimeout / time.Second),
			PingIntervalSec: 15,
		},
		Dashboard: dashboardCnf{
			TemperatureAlert: dashboard.DefaultTemperatureAlert,
		},
	}
}

func (c config) validate() error {
	if c.HistorySize <= 0 || c.HistorySize > maxHistorySize {
		return fmt.Errorf("history_size must be between 1 and %d, got %d", maxHistorySize, c.HistorySize)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen must not be empty")
	}
	return nil
}

func (c viewerCnf) sendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSec) * time.Second
}

func (c viewerCnf) pingInterval() time.Duration {
	return time.Duration(c.PingIntervalSec) * time.Second
}

func prettyJson(data any) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	err := enc.Encode(data)
	return buf.Bytes(), err
}

// readAndUpdateConfig loads the config at path on top of the defaults.
// A missing file is created, an existing one is rewritten so new keys show
// up for the user to edit.
func readAndUpdateConfig(path string) (config, error) {
	cnf := defaultConfig()

	writeConfigIndented := func(cnf config) error {
		data, err := prettyJson(cnf)
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0640)
	}

	configContent, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cnf, err
		}
		if err := writeConfigIndented(cnf); err != nil {
			return cnf, err
		}
		return cnf, nil
	}

	if err := json.Unmarshal(configContent, &cnf); err != nil {
		return cnf, fmt.Errorf("failed to parse %s. %w", filepath.Base(path), err)
	}
	if err := cnf.validate(); err != nil {
		return cnf, err
	}

	formatted, err := prettyJson(cnf)
	if err != nil {
		return cnf, err
	}
	if !bytes.Equal(bytes.TrimSpace(formatted), bytes.TrimSpace(configContent)) {
		if err := writeConfigIndented(cnf); err != nil {
			return cnf, err
		}
	}
	return cnf, nil
}

// liveSettings holds what a config reload may change without a restart.
type liveSettings struct {
	level     *slog.LevelVar
	threshold *dashboard.Threshold
	logger    *slog.Logger

	mtx    sync.Mutex
	active config
}

func newLiveSettings(cnf config, level *slog.LevelVar, threshold *dashboard.Threshold, logger *slog.Logger) *liveSettings {
	s := &liveSettings{
		level:     level,
		threshold: threshold,
		logger:    logger.With(slog.String("category", "config")),
		active:    cnf,
	}
	s.applyLocked(cnf)
	return s
}

func (s *liveSettings) Apply(cnf config) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	next, prev := cnf, s.active
	next.Debug, prev.Debug = false, false
	next.Dashboard, prev.Dashboard = dashboardCnf{}, dashboardCnf{}
	if next != prev {
		s.logger.Warn("config changed in fields that need a restart to take effect")
	}

	s.applyLocked(cnf)
	s.active = cnf
}

func (s *liveSettings) applyLocked(cnf config) {
	if cnf.Debug {
		s.level.Set(slog.LevelDebug)
	} else {
		s.level.Set(slog.LevelInfo)
	}
	s.threshold.Set(cnf.Dashboard.TemperatureAlert)
}

// watchForConfigChanges reloads path through apply once writes to it have
// settled for a second.
func watchForConfigChanges(ctx context.Context, watcher *fsnotify.Watcher, path string, logger *slog.Logger, apply func(config)) error {
	logger = logger.With(slog.String("category", "config"))
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch for config changes. %w", err)
	}

	var (
		mtx          sync.Mutex
		reloadCancel context.CancelFunc = func() {}
	)
	triggerReload := func() {
		mtx.Lock()
		reloadCancel()
		var reloadCtx context.Context
		reloadCtx, reloadCancel = context.WithCancel(ctx)
		mtx.Unlock()

		select {
		case <-reloadCtx.Done():
			return
		case <-time.After(time.Second):
		}
		logger.Info("config file changed, reloading")
		cnf, err := readAndUpdateConfig(path)
		if err != nil {
			logger.Warn("reading the configuration yielded an error", slog.Any("err", err))
			return
		}
		apply(cnf)
	}

	go func() {
		defer func() {
			mtx.Lock()
			reloadCancel()
			mtx.Unlock()
		}()

		name := filepath.Base(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && strings.EqualFold(filepath.Base(event.Name), name) {
					go triggerReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("fsnotify received an error", slog.Any("err", err))
			}
		}
	}()
	return nil
}
