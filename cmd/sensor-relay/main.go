package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kirides/sensor-relay"
	"github.com/kirides/sensor-relay/dashboard"
	"github.com/kirides/sensor-relay/ingress/mqtt"
	"github.com/kirides/sensor-relay/simulate"
	"github.com/kirides/sensor-relay/transport/pipe"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	appName        = "sensor-relay"
	configFileName = appName + ".json"
	logKeyCategory = "category"
)

func main() {
	configPath := flag.String("config", configFileName, "path to the JSON config file")
	flag.Parse()

	level := &slog.LevelVar{}

	logFile := &lumberjack.Logger{
		Filename: appName + ".log",
		MaxAge:   14,
	}
	defer logFile.Close()

	slogHandler := slog.NewTextHandler(io.MultiWriter(os.Stdout, logFile), &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(slogHandler)
	slog.SetDefault(logger)

	if err := run(*configPath, level, logger); err != nil {
		logger.Error("sensor relay stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(configPath string, level *slog.LevelVar, logger *slog.Logger) error {
	configPath, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}
	cnf, err := readAndUpdateConfig(configPath)
	if err != nil {
		logger.Error("Error reading config", slog.Any("err", err))
		return err
	}

	threshold := dashboard.NewThreshold(cnf.Dashboard.TemperatureAlert)
	settings := newLiveSettings(cnf, level, threshold, logger)

	appCtx, appCtxCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer appCtxCancel()

	registry := relay.NewRegistry(logger,
		relay.WithQueueSize(cnf.Viewer.QueueSize),
		relay.WithSendTimeout(cnf.Viewer.sendTimeout()),
	)
	rly := relay.New(cnf.HistorySize, registry, logger)
	defer rly.Close()
	ingress := relay.NewIngress(rly, logger)

	services := newServiceManager(logger)

	rt := &routes{
		relay:     rly,
		ingress:   ingress,
		testPub:   directPublisher{accept: ingress},
		generator: simulate.New(time.Now().UnixNano(), simulate.TestRoute),
		threshold: threshold,
		cnf:       cnf,
		logger:    logger,
		started:   time.Now(),
	}

	if cnf.MQTT.Enabled {
		source := mqtt.New(mqtt.Config{
			Broker:   cnf.MQTT.Broker,
			Topic:    cnf.MQTT.Topic,
			QoS:      cnf.MQTT.QoS,
			ClientID: cnf.MQTT.ClientID,
			Username: cnf.MQTT.Username,
			Password: cnf.MQTT.Password,
		}, ingress, logger)
		rt.testPub = source
		services.Add("mqtt ingress", source.Run)
	}

	if cnf.Pipe.Enabled {
		ln, err := pipe.Listen(cnf.Pipe.Path)
		if err != nil {
			logger.Error("Could not setup pipe listener", slog.Any("err", err))
			return err
		}
		defer ln.Close()
		services.Add("pipelistener stopping routine", func(ctx context.Context) error {
			<-ctx.Done()
			return ln.Close()
		})
		pipeServer := pipe.NewServer(rly, logger, cnf.Viewer.pingInterval())
		services.Add("pipelistener", func(ctx context.Context) error {
			return pipeServer.Serve(ctx, ln)
		})
	}

	server := &http.Server{
		Addr:              cnf.HTTP.Listen,
		Handler:           rt.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	ln, err := net.Listen("tcp", cnf.HTTP.Listen)
	if err != nil {
		logger.Error("Could not listen", slog.String("addr", cnf.HTTP.Listen), slog.Any("err", err))
		return err
	}
	services.Add("http server", func(ctx context.Context) error {
		logger.Info("Serving HTTP", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	services.Add("http server stopping routine", func(ctx context.Context) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("failed to setup fsnotify to support config hot-reloading", slog.Any("err", err))
	} else {
		defer watcher.Close()
		if err := watchForConfigChanges(appCtx, watcher, configPath, logger, settings.Apply); err != nil {
			logger.Warn("config hot-reloading disabled", slog.Any("err", err))
		}
	}

	<-appCtx.Done()
	logger.Info("Shutting down")

	// viewers are closed first so the websocket handlers return before the
	// http server waits on them
	rly.Close()
	services.Stop()
	return nil
}
