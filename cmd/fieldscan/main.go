package main

import (
	"context"
	"flag"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"

	"github.com/bdougie/fieldscan/internal/aggregate"
	"github.com/bdougie/fieldscan/internal/analyzer"
	"github.com/bdougie/fieldscan/internal/annotate"
	"github.com/bdougie/fieldscan/internal/config"
	"github.com/bdougie/fieldscan/internal/correlate"
	"github.com/bdougie/fieldscan/internal/detector"
	"github.com/bdougie/fieldscan/internal/extractor"
	"github.com/bdougie/fieldscan/internal/gemini"
	"github.com/bdougie/fieldscan/internal/metrics"
	"github.com/bdougie/fieldscan/internal/models"
	"github.com/bdougie/fieldscan/internal/opencv"
	"github.com/bdougie/fieldscan/internal/storage"
	"github.com/bdougie/fieldscan/internal/telemetry"
)

const nearbyLimit = 10

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	videoPath := flag.String("video", "", "Path to the drone MP4 video")
	trackPath := flag.String("srt", "", "Path to the SRT telemetry track")
	outputDir := flag.String("output", cfg.OutputDir, "Directory for frames and results")
	lookFor := flag.String("look-for", cfg.LookFor, `What to detect, e.g. "bare spot, weed"`)
	mode := flag.String("mode", cfg.AggregationMode, "Aggregation mode: multi or single")
	near := flag.String("near", "", "Query stored frames with detections closest to \"lat,lon\" instead of scanning")
	flag.Parse()

	if *near == "" && (*videoPath == "" || *trackPath == "") {
		fmt.Println("Usage: fieldscan --video path/to/video.mp4 --srt path/to/video.srt [--output dir] [--look-for \"bare spot\"] [--mode multi|single]")
		fmt.Println("       fieldscan --near lat,lon")
		os.Exit(1)
	}

	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      cfg.SlogLevel(),
			TimeFormat: "15:04:05",
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *near != "" {
		if err := queryNearby(ctx, cfg, *near, os.Stdout); err != nil {
			logger.Error("nearby query failed", tint.Err(err))
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger, analyzer.ScanRequest{
		VideoPath: *videoPath,
		TrackPath: *trackPath,
		OutputDir: *outputDir,
		LookFor:   *lookFor,
	}, *mode); err != nil {
		logger.Error("scan failed", tint.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, req analyzer.ScanRequest, modeFlag string) error {
	mode, err := aggregate.ParseMode(modeFlag)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.StartServer(cfg.MetricsAddr, logger)
		defer srv.Shutdown(context.WithoutCancel(ctx))
	}

	service, err := newService(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize detection service: %w", err)
	}

	store, closeStore, err := newStorage(ctx, cfg, req.OutputDir, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := detector.NewRegistry(cfg.ConfidenceFloor)
	dispatcher := detector.NewDispatcher(registry, service, logger, cfg.DetectTimeout)
	aggregator := aggregate.NewAggregator(mode, cfg.ConfidenceFloor, newAnnotator(cfg), logger)

	processor := analyzer.NewProcessor(openFunc(cfg), dispatcher, aggregator, store, logger)
	processor.OnProgress = func(p analyzer.Progress) {
		if p.Total > 0 {
			logger.Debug("scan progress", "state", p.State, "frame", p.Frame, "done", p.Done, "total", p.Total)
			return
		}
		logger.Info("scan state", "state", p.State)
	}

	logger.Info("starting scan", "video", req.VideoPath, "srt", req.TrackPath, "look_for", req.LookFor, "mode", mode)
	result, err := processor.RunScan(ctx, req)
	if result != nil {
		printSummary(result.ID.String(), len(result.Records), result.DetectionCount(), len(result.Skipped), len(correlate.FlightPath(result.Records)))
		for _, s := range result.Skipped {
			logger.Debug("skipped", "second", s.Second, "stage", s.Stage, "reason", s.Reason)
		}
	}
	return err
}

func newService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (detector.Service, error) {
	switch cfg.DetectorBackend {
	case "gemini":
		return gemini.NewService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	default:
		return analyzer.NewAgentService(ctx, analyzer.AgentConfig{
			BaseURL: cfg.OllamaBaseURL,
			Port:    cfg.OllamaPort,
			Model:   cfg.OllamaModel,
		}, logger)
	}
}

func openFunc(cfg *config.Config) analyzer.OpenFunc {
	if cfg.VideoBackend == "opencv" {
		return func(ctx context.Context, path string) (extractor.Source, error) {
			return opencv.Open(path)
		}
	}
	return func(ctx context.Context, path string) (extractor.Source, error) {
		return extractor.OpenFFmpeg(ctx, path)
	}
}

func newAnnotator(cfg *config.Config) aggregate.Annotator {
	if cfg.AnnotateBackend == "opencv" {
		return opencv.NewAnnotator()
	}
	return annotate.NewAnnotator()
}

// newStorage always writes results.csv and adds the optional sinks that are configured.
func newStorage(ctx context.Context, cfg *config.Config, outputDir string, logger *slog.Logger) (storage.Storage, func(), error) {
	sinks := []storage.Storage{storage.NewCSVStorage(outputDir)}
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.JSONExport {
		sinks = append(sinks, storage.NewJSONStorage(outputDir))
	}

	if cfg.DatabaseURL != "" {
		if err := storage.InitSchema(ctx, cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pg, err := storage.NewPostgresStorage(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pg.Close)
		sinks = append(sinks, pg)
		logger.Info("storing results in postgres")
	}

	if cfg.SQLitePath != "" {
		lite, err := storage.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { lite.Close() })
		sinks = append(sinks, lite)
		logger.Info("storing results in sqlite", "path", cfg.SQLitePath)
	}

	return storage.Multi(sinks...), closeAll, nil
}

func printSummary(id string, records, detections, skipped, waypoints int) {
	fmt.Printf("Scan %s finished\n", id)
	fmt.Printf("  Frames analyzed:  %d\n", records)
	fmt.Printf("  Detections:       %d\n", detections)
	fmt.Printf("  Skipped:          %d\n", skipped)
	fmt.Printf("  GPS waypoints:    %d\n", waypoints)
}

// parseNear reads a "lat,lon" pair with the same rules applied to telemetry text.
func parseNear(value string) (models.GeoPoint, error) {
	point := telemetry.ParseCoordinates(value)
	if point == nil {
		return models.GeoPoint{}, fmt.Errorf("invalid --near %q, expected decimal \"lat,lon\"", value)
	}
	if point.Latitude < -90 || point.Latitude > 90 || point.Longitude < -180 || point.Longitude > 180 {
		return models.GeoPoint{}, fmt.Errorf("invalid --near %q, coordinates out of range", value)
	}
	return *point, nil
}

func queryNearby(ctx context.Context, cfg *config.Config, value string, w io.Writer) error {
	point, err := parseNear(value)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("--near needs DATABASE_URL")
	}

	pg, err := storage.NewPostgresStorage(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pg.Close()

	frames, err := pg.SearchNearby(ctx, point.Latitude, point.Longitude, nearbyLimit)
	if err != nil {
		return err
	}
	printNearby(w, frames)
	return nil
}

func printNearby(w io.Writer, frames []storage.NearbyFrame) {
	if len(frames) == 0 {
		fmt.Fprintln(w, "No stored frames with detections")
		return
	}
	for _, f := range frames {
		fmt.Fprintf(w, "%s (%.6f, %.6f) distance %.6f\n", f.ImagePath, f.Position.Latitude, f.Position.Longitude, f.Distance)
		for _, d := range f.Detections {
			fmt.Fprintf(w, "  %s %.2f %s\n", d.ObjectType, d.Confidence, d.ReportText)
		}
	}
}
