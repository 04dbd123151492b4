// Command sensor-simulator stands in for a field sensor and feeds random
// readings to a relay over MQTT or HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirides/sensor-relay/ingress/mqtt"
	"github.com/kirides/sensor-relay/simulate"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	mode     string
	url      string
	apiKey   string
	broker   string
	topic    string
	interval time.Duration
	timeout  time.Duration
	count    int
	seed     int64
	logFile  string
	debug    bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("sensor-simulator", flag.ContinueOnError)
	fs.StringVar(&o.mode, "mode", "mqtt", "transport to publish on: mqtt or http")
	fs.StringVar(&o.url, "url", "http://localhost:5000/api/sensor", "push endpoint URL (http mode)")
	fs.StringVar(&o.apiKey, "api-key", "", "value for the X-API-Key header (http mode)")
	fs.StringVar(&o.broker, "broker", mqtt.DefaultBroker, "MQTT broker URL (mqtt mode)")
	fs.StringVar(&o.topic, "topic", mqtt.DefaultTopic, "MQTT topic (mqtt mode)")
	fs.DurationVar(&o.interval, "interval", 10*time.Second, "delay between readings")
	fs.DurationVar(&o.timeout, "timeout", 5*time.Second, "per reading publish timeout")
	fs.IntVar(&o.count, "count", 0, "number of readings to emit (0 = infinite)")
	fs.Int64Var(&o.seed, "seed", 0, "random seed (0 = use current time)")
	fs.StringVar(&o.logFile, "log-file", "", "also log to this file, rotated")
	fs.BoolVar(&o.debug, "debug", false, "log at debug level")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch {
	case o.mode != "mqtt" && o.mode != "http":
		return o, fmt.Errorf("unknown mode %q", o.mode)
	case o.interval <= 0:
		return o, fmt.Errorf("interval must be > 0")
	case o.timeout <= 0:
		return o, fmt.Errorf("timeout must be > 0")
	case o.count < 0:
		return o, fmt.Errorf("count must be >= 0")
	}
	if o.seed == 0 {
		o.seed = time.Now().UnixNano()
	}
	return o, nil
}

func newLogger(o options) (*zap.Logger, func()) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if o.debug {
		level.SetLevel(zap.DebugLevel)
	}

	out := zapcore.Lock(os.Stdout)
	closeFn := func() {}
	if o.logFile != "" {
		logFile := &lumberjack.Logger{
			Filename: o.logFile,
			MaxAge:   14,
		}
		out = zap.CombineWriteSyncers(out, zapcore.AddSync(logFile))
		closeFn = func() { logFile.Close() }
	}

	zapCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		out,
		level)
	return zap.New(zapCore), closeFn
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, closeLog := newLogger(o)
	defer closeLog()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var s sink
	switch o.mode {
	case "http":
		s = newHTTPSink(o.url, o.apiKey, o.timeout)
	case "mqtt":
		ms, err := newMQTTSink(ctx, o.broker, o.topic, o.timeout)
		if err != nil {
			logger.Error("failed to connect", zap.String("broker", o.broker), zap.Error(err))
			os.Exit(1)
		}
		defer ms.Close()
		s = ms
	}

	logger.Info("simulator started",
		zap.String("mode", o.mode),
		zap.Int64("seed", o.seed),
		zap.Duration("interval", o.interval))

	sim := &simulator{
		sink:      s,
		generator: simulate.New(o.seed, simulate.Field),
		limiter:   rate.NewLimiter(rate.Every(o.interval), 1),
		timeout:   o.timeout,
		logger:    logger,
	}
	sent := sim.Run(ctx, o.count)
	logger.Info("simulation stopped", zap.Int("sent", sent))
}
