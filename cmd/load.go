package cmd

import (
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/georender-go/internal/logger"
	"github.com/wegman-software/georender-go/internal/sink"
)

var loadCmd = &cobra.Command{
	Use:   "load <records>",
	Short: "Load a frame or Parquet record file into PostgreSQL",
	Long: `Bulk load georender records into PostgreSQL.

This stage:
  1. Creates <schema>.georender_records (osm_id, osm_type, kind, record)
  2. Streams every record through a single COPY
  3. Optionally indexes (osm_type, osm_id) and analyzes the table

Parquet files keep each record's OSM type; frame files do not, so their
records load as N (nodes) or W (everything else).`,
	Args: cobra.ExactArgs(1),
	Run:  runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVarP(&cfg.Compression, "compression", "c", cfg.Compression, "Frame compression: none or zstd")
	loadCmd.Flags().BoolVar(&cfg.CreateIndex, "create-index", cfg.CreateIndex, "Index the records table after loading")
	loadCmd.Flags().BoolVar(&cfg.DropExisting, "drop-existing", false, "Drop the records table before loading")
}

func runLoad(cmd *cobra.Command, args []string) {
	log := logger.Get()
	log.Info("Starting PostgreSQL load",
		zap.String("input", args[0]),
		zap.String("database", cfg.DBName),
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("user", cfg.DBUser),
		zap.String("schema", cfg.DBSchema),
	)

	c, err := sink.ParseCompression(cfg.Compression)
	if err != nil {
		exitWithError("invalid compression", err)
	}

	ctx, cancel := commandContext()
	defer cancel()
	start := time.Now()

	w, err := sink.NewPostgresWriter(ctx, sink.PostgresOptions{
		ConnString:   cfg.ConnectionString(),
		Schema:       cfg.DBSchema,
		DropExisting: cfg.DropExisting,
		CreateIndex:  cfg.CreateIndex,
		Log:          log,
	})
	if err != nil {
		exitWithError("failed to connect", err)
	}

	if err := sink.ReadFile(ctx, args[0], c, w.Write); err != nil {
		w.Close()
		exitWithError("load failed", err)
	}
	if err := w.Close(); err != nil {
		exitWithError("load failed", err)
	}

	elapsed := time.Since(start)
	log.Info("Load complete",
		zap.Duration("duration", elapsed.Round(time.Second)),
		zap.Int64("rows", w.Rows()),
		zap.Float64("throughput_rows_s", float64(w.Rows())/elapsed.Seconds()),
	)
}
