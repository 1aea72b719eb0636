package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lifeline-router/internal/config"
	"lifeline-router/internal/importer"
	"lifeline-router/internal/logging"
	"lifeline-router/internal/sqlite"
)

var (
	configPath string
	envFile    string
	batchSize  int
)

var rootCmd = &cobra.Command{
	Use:   "importer",
	Short: "Load hazard zones and flood road segments into the routing store",
	Long: `Reads GeoJSON FeatureCollections and writes them into the sqlite database
used by the routing server.

Hazard zone features must be Polygon or MultiPolygon with a hazardType property.
Flood road features must be LineString or MultiLineString; csv_flood_depth_5yr
and csv_passable are read when present.`,
	SilenceUsage: true,
}

var hazardsCmd = &cobra.Command{
	Use:   "hazards <file.geojson>",
	Short: "Import hazard zones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImporter(cmd.Context(), func(ctx context.Context, im *importer.Importer, r io.Reader) (int, error) {
			return im.ImportHazardZones(ctx, r)
		}, args[0], "hazard zones")
	},
}

var floodsCmd = &cobra.Command{
	Use:   "floods <file.geojson>",
	Short: "Import flood road segments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withImporter(cmd.Context(), func(ctx context.Context, im *importer.Importer, r io.Reader) (int, error) {
			return im.ImportFloodRoads(ctx, r)
		}, args[0], "flood roads")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("LIFELINE_CONFIG"), "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "path to a .env file")
	floodsCmd.Flags().IntVarP(&batchSize, "batch", "b", importer.DefaultBatchSize, "flood roads written per transaction")

	rootCmd.AddCommand(hazardsCmd, floodsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type importFunc func(ctx context.Context, im *importer.Importer, r io.Reader) (int, error)

func withImporter(ctx context.Context, run importFunc, path, what string) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	store, err := sqlite.New(cfg.Database.Path, logger.Named("sqlite"))
	if err != nil {
		return fmt.Errorf("failed to open data store: %w", err)
	}
	defer store.Close()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	im := importer.New(store, batchSize, logger.Named("importer"))
	n, err := run(ctx, im, f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	logger.Info(what+" loaded", zap.String("file", path), zap.Int("count", n))
	return nil
}
