package main

import (
	"context"
	"flag"
	"os"
	"runtime/pprof"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/flashtensor/internal/device"
)

var (
	flagShape      = flag.String("shape", "2,3,4", "Comma separated tensor shape (empty for a scalar)")
	flagDevice     = flag.String("device", "cpu", "Device to allocate on (cpu, cuda)")
	flagPerm       = flag.String("perm", "", "Comma separated axis permutation applied to the view")
	flagNarrow     = flag.String("narrow", "", "Restrict the view along one dimension: dim:start:length")
	flagMaxBytes   = flag.String("max-bytes", "0", "Per-device allocation limit (e.g. 64MB, 4GB); 0 for unbounded host memory")
	flagPool       = flag.Bool("pool", false, "Recycle released buffers through a per-device pool")
	flagDuration   = flag.Duration("duration", 0, "Repeat the inspection for the given duration (e.g. 10s)")
	enableOTel     = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	cpuProfile     = flag.String("cpuprofile", "", "Write cpu profile to file")
	flagDebugLevel = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	// Initialize logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *flagDebugLevel {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	cfg, err := configFromFlags()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid arguments")
	}

	maxBytes, err := parseBytes(*flagMaxBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -max-bytes")
	}
	registry, pools := buildRegistry(maxBytes, *flagPool)
	cfg.registry = registry
	defer func() {
		for _, p := range pools {
			p.Drain()
		}
	}()
	log.Info().
		Str("max_bytes", *flagMaxBytes).
		Int64("bytes", maxBytes).
		Bool("pool", *flagPool).
		Msg("Allocator limits")

	ctx := context.Background()

	if *flagDuration > 0 {
		soak(ctx, cfg, *flagDuration)
		return
	}

	rep, err := runInspect(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Inspection failed")
	}
	logReport(rep)
}

func configFromFlags() (inspectConfig, error) {
	var cfg inspectConfig

	shape, err := parseInts(*flagShape)
	if err != nil {
		return cfg, err
	}
	dev, err := device.ParseType(*flagDevice)
	if err != nil {
		return cfg, err
	}
	cfg.shape = shape
	cfg.device = dev

	if *flagPerm != "" {
		if cfg.perm, err = parseInts(*flagPerm); err != nil {
			return cfg, err
		}
	}
	if cfg.narrow, err = parseNarrow(*flagNarrow); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func logReport(rep report) {
	for _, l := range []struct {
		name string
		layout
	}{{"base", rep.Base}, {"view", rep.View}, {"clone", rep.Clone}} {
		log.Info().
			Ints("shape", l.Shape).
			Ints("strides", l.Strides).
			Int("offset", l.Offset).
			Bool("contiguous", l.Contiguous).
			Msg(l.name)
	}
	if !rep.Matches {
		log.Error().Msg("Clone does not match view")
		return
	}
	log.Info().Msg("Clone matches view")
}

func soak(ctx context.Context, cfg inspectConfig, duration time.Duration) {
	log.Info().Str("duration", duration.String()).Msg("Starting soak test")

	startTime := time.Now()
	endTime := startTime.Add(duration)
	var iter int

	for time.Now().Before(endTime) {
		if _, err := runInspect(ctx, cfg); err != nil {
			log.Fatal().Err(err).Int("iter", iter).Msg("Inspection failed")
		}
		iter++

		if iter%1000 == 0 {
			elapsed := time.Since(startTime)
			log.Info().
				Str("elapsed", elapsed.Round(time.Second).String()).
				Int("iter", iter).
				Float64("ips", float64(iter)/elapsed.Seconds()).
				Msg("Soak test progress")
		}
	}

	totalElapsed := time.Since(startTime)
	log.Info().
		Int("iterations", iter).
		Dur("total_time", totalElapsed).
		Float64("avg_ips", float64(iter)/totalElapsed.Seconds()).
		Msg("Soak test complete")
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("flashtensor"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
