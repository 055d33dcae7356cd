// pvlogger records a list of process variables that update asynchronously
// to the sampling, one tab-separated row per sample, in daily text files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/synchlab/pvlogger/pkg/config"
	"github.com/synchlab/pvlogger/pkg/datalog"
	"github.com/synchlab/pvlogger/pkg/livefeed"
	"github.com/synchlab/pvlogger/pkg/pathing"
	"github.com/synchlab/pvlogger/pkg/recorder"
	"github.com/synchlab/pvlogger/pkg/sampledb"
	"github.com/synchlab/pvlogger/pkg/serialsource"
	"github.com/synchlab/pvlogger/pkg/source"
	"github.com/synchlab/pvlogger/pkg/types"
	"github.com/synchlab/pvlogger/pkg/wssource"
)

func main() {
	var (
		configPath string
		dataDir    string
		period     float64
		duration   float64
		backend    string
		verbose    bool
		debug      bool
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] pv-name...\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "  pv-name\n    \tone or more PV names to record, in column order\n")
	}
	flag.StringVar(&configPath, "config", "", "config `file` (default "+pathing.GetConfigPath()+")")
	flag.StringVar(&dataDir, "path", "", "logging `directory` under which daily files are stored")
	flag.Float64Var(&period, "period", 0, "recording period in `seconds` (default 10)")
	flag.Float64Var(&duration, "duration", 0, "recording ends after this duration in `seconds` (default 3600)")
	flag.StringVar(&backend, "backend", "", "value source `backend`: sim, serial or feed")
	flag.BoolVar(&verbose, "v", false, "informational messages")
	flag.BoolVar(&debug, "vv", false, "detailed messages")
	flag.Parse()

	switch {
	case debug:
		log.SetLevel(log.DebugLevel)
	case verbose:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}

	cfg := loadConfig(configPath)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if period > 0 {
		cfg.PeriodSeconds = period
	}
	if duration > 0 {
		cfg.DurationSeconds = duration
	}
	if backend != "" {
		cfg.SourceBackend = backend
	}

	pvnames := flag.Args()
	if len(pvnames) == 0 {
		pvnames = cfg.PVNames
	}
	if len(pvnames) == 0 {
		fmt.Fprintln(flag.CommandLine.Output(), "at least one PV name is required")
		flag.Usage()
		os.Exit(2)
	}

	names := make([]types.PVName, len(pvnames))
	for i, n := range pvnames {
		names[i] = types.PVName(n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, teardown := buildGroup(ctx, cfg, names)
	defer teardown()

	writer := datalog.NewWriter(cfg.DataDir, names)
	log.Infof("directory: %s", cfg.DataDir)

	var sinks []recorder.SampleSink
	if cfg.MirrorEnabled {
		mirror, err := sampledb.Open(pathing.GetSampleDbPath(cfg.DataDir))
		if err != nil {
			log.Fatalf("failed to open sample mirror: %v", err)
		}
		defer mirror.Close()
		sinks = append(sinks, mirror)
	}
	if cfg.ListenAddress != "" {
		hub := livefeed.NewHub()
		go func() {
			addr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
			if err := hub.Serve(addr); err != nil {
				log.Warnf("live feed stopped: %v", err)
			}
		}()
		defer hub.Shutdown()
		sinks = append(sinks, hub)
	}

	rec, err := recorder.New(recorder.Config{
		Period:   secondsToDuration(cfg.PeriodSeconds),
		Duration: secondsToDuration(cfg.DurationSeconds),
	}, group, writer, sinks...)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if err := rec.Start(); err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		log.Warn("interrupt received, stopping")
		rec.Stop()
	}()

	if err := rec.Wait(); err != nil {
		log.Errorf("recording failed: %v", err)
		os.Exit(1)
	}
}

// loadConfig honors --config when given, falls back to the well-known file
// when it exists, and otherwise runs on built-in defaults so a plain
// `pvlogger a b` works without touching /etc.
func loadConfig(configPath string) *config.RecorderConfig {
	if configPath == "" {
		if _, err := os.Stat(pathing.GetConfigPath()); os.IsNotExist(err) {
			return config.DefaultRecorderConfig()
		}
	}
	if err := config.LoadRecorderConfig(configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return config.ActiveRecorderConfig
}

func buildGroup(ctx context.Context, cfg *config.RecorderConfig, names []types.PVName) (*source.Group, func()) {
	switch cfg.SourceBackend {
	case "serial":
		reader := serialsource.NewPortReader(cfg.SerialDevice, cfg.Baudrate)
		if err := reader.Start(); err != nil {
			log.Fatalf("failed to start serial reader: %v", err)
		}
		sources := make([]source.ValueSource, len(names))
		for i, n := range names {
			sources[i] = reader.Source(n)
		}
		return source.NewGroup(sources...), reader.Stop
	case "feed":
		reader := wssource.NewFeedReader(cfg.FeedHost)
		reader.Start(ctx)
		sources := make([]source.ValueSource, len(names))
		for i, n := range names {
			sources[i] = reader.Source(n)
		}
		return source.NewGroup(sources...), func() {}
	case "sim", "":
		sources := make([]source.ValueSource, len(names))
		for i, n := range names {
			sources[i] = source.NewRandomWalkSource(n)
		}
		return source.NewGroup(sources...), func() {}
	default:
		log.Fatalf("unknown source backend %q", cfg.SourceBackend)
		return nil, nil
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
