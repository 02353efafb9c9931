package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/georender-go/internal/areatag"
	"github.com/wegman-software/georender-go/internal/config"
	"github.com/wegman-software/georender-go/internal/dispatch"
	"github.com/wegman-software/georender-go/internal/flex"
	"github.com/wegman-software/georender-go/internal/label"
	"github.com/wegman-software/georender-go/internal/logger"
	"github.com/wegman-software/georender-go/internal/pipeline"
	"github.com/wegman-software/georender-go/internal/point"
	"github.com/wegman-software/georender-go/internal/record"
	"github.com/wegman-software/georender-go/internal/sink"
	"github.com/wegman-software/georender-go/internal/style"
)

var bboxStr string

var encodeCmd = &cobra.Command{
	Use:   "encode <input.osm.pbf>",
	Short: "Encode a PBF file into georender records",
	Long: `Encode an OpenStreetMap PBF file into georender records:

  1. Pass 1: index node positions, encode tagged nodes, collect relations
  2. Pass 2: encode ways as lines or triangulated areas
  3. Assemble multipolygon and boundary relations into area records

Records go to a frame file (varint length + record, zstd with --compression
or a .zst suffix), a Parquet file, or a PostgreSQL table.`,
	Args: cobra.ExactArgs(1),
	Run:  runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)

	encodeCmd.Flags().StringVarP(&cfg.OutputFile, "output", "o", "", "Output file (\"-\" writes frames to stdout)")
	encodeCmd.Flags().StringVarP(&cfg.Format, "format", "f", cfg.Format, "Output format: frames, parquet or postgres")
	encodeCmd.Flags().StringVarP(&cfg.Compression, "compression", "c", cfg.Compression, "Frame compression: none or zstd")
	encodeCmd.Flags().StringVarP(&cfg.StyleFile, "style", "S", "", "Class table (.yaml) or classify script (.lua)")
	encodeCmd.Flags().StringVarP(&bboxStr, "bbox", "b", "", "Bounding box filter: minlon,minlat,maxlon,maxlat")
	encodeCmd.Flags().StringVar(&cfg.FlatNodesFile, "flat-nodes", "", "Keep node positions in this memory-mapped file instead of RAM (1e-7 degree precision)")
	encodeCmd.Flags().Int64Var(&cfg.MaxNodeID, "max-node-id", cfg.MaxNodeID, "Largest node id the flat nodes file can hold")
	encodeCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per Parquet row group")
	encodeCmd.Flags().BoolVar(&cfg.SkipNodes, "skip-nodes", false, "Do not encode point features")
	encodeCmd.Flags().BoolVar(&cfg.SkipWays, "skip-ways", false, "Do not encode ways")
	encodeCmd.Flags().BoolVar(&cfg.SkipRelations, "skip-relations", false, "Do not assemble relations")
	encodeCmd.Flags().BoolVar(&cfg.DropExisting, "drop-existing", false, "Drop the records table before loading (postgres)")
	encodeCmd.Flags().BoolVar(&cfg.CreateIndex, "create-index", cfg.CreateIndex, "Index the records table after loading (postgres)")
}

func runEncode(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.Get()

	if bboxStr != "" {
		bbox, err := config.ParseBBox(bboxStr)
		if err != nil {
			exitWithError("invalid bbox", err)
		}
		cfg.BBox = bbox
	}
	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	pf, err := point.ParseFormat(cfg.PointFormat)
	if err != nil {
		exitWithError("invalid point format", err)
	}

	cls, err := loadClassification(cfg.StyleFile, cfg.Workers, log)
	if err != nil {
		exitWithError("failed to load style", err)
	}
	defer cls.close()

	disp := dispatch.New(record.NewEncoder(pf), cls.classifier, log)
	disp.IsArea = cls.isArea

	logFields := []zap.Field{
		zap.String("input", cfg.InputFile),
		zap.String("format", cfg.Format),
		zap.String("points", pf.String()),
		zap.Int("workers", cfg.Workers),
	}
	if cfg.OutputFile != "" {
		logFields = append(logFields, zap.String("output", cfg.OutputFile))
	}
	if cfg.BBox != nil && cfg.BBox.IsSet {
		logFields = append(logFields, zap.String("bbox",
			fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", cfg.BBox.MinLon, cfg.BBox.MinLat, cfg.BBox.MaxLon, cfg.BBox.MaxLat)))
	}
	if cfg.StyleFile != "" {
		logFields = append(logFields, zap.String("style", cfg.StyleFile))
	}
	log.Info("Starting encode", logFields...)

	ctx, cancel := commandContext()
	defer cancel()

	w, err := openSink(ctx, cfg, log)
	if err != nil {
		exitWithError("failed to open output", err)
	}
	counter := sink.NewCounter(w)

	stats, err := pipeline.NewEncoder(cfg, disp, cls.filters, log).Run(ctx, counter)
	if err != nil {
		exitWithError("encode failed", err)
	}

	log.Info("Encode complete",
		zap.Duration("total_time", stats.Duration.Round(time.Second)),
		zap.Int64("nodes", stats.Nodes),
		zap.Int64("ways", stats.Ways),
		zap.Int64("relations", stats.Relations),
		zap.Int64("points", stats.Points),
		zap.Int64("lines", stats.Lines),
		zap.Int64("areas", stats.Areas),
		zap.Int64("relation_areas", stats.RelationAreas),
		zap.Int64("filtered", stats.Filtered),
		zap.Int64("outside_bbox", stats.OutsideBBox),
		zap.Int64("empty", stats.Empty),
		zap.Int64("missing_member_ways", stats.MissingChains),
		zap.String("record_bytes", humanize.IBytes(uint64(counter.Bytes))),
		zap.Float64("throughput_mb_s", float64(stats.BytesRead)/(1024*1024)/stats.Duration.Seconds()),
	)
}

// classification is what --style selects: classes, area rules and filters
type classification struct {
	classifier label.Classifier
	isArea     dispatch.AreaFunc
	filters    style.Filters
	close      func()
}

// loadClassification reads a YAML class table, or starts a pool of Lua
// runtimes for a .lua script; an empty path uses the embedded table
func loadClassification(path string, workers int, log *zap.Logger) (*classification, error) {
	if strings.HasSuffix(strings.ToLower(path), ".lua") {
		pool, err := flex.NewPool(path, workers, style.NewClassifier(style.DefaultConfig()), log)
		if err != nil {
			return nil, err
		}
		log.Info("Using Lua classification", zap.String("style", path), zap.Bool("is_area", pool.HasIsArea()))
		return &classification{
			classifier: pool,
			isArea:     pool.IsArea(areatag.IsArea),
			close:      pool.Close,
		}, nil
	}

	styleCfg := style.DefaultConfig()
	if path != "" {
		var err error
		if styleCfg, err = style.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	isArea := areatag.IsArea
	if len(styleCfg.Areas) > 0 {
		isArea = areatag.New(styleCfg.Areas).IsArea
	}
	return &classification{
		classifier: style.NewClassifier(styleCfg),
		isArea:     isArea,
		filters:    styleCfg.Filters,
		close:      func() {},
	}, nil
}

// openSink creates the writer for cfg.Format
func openSink(ctx context.Context, cfg *config.Config, log *zap.Logger) (sink.Writer, error) {
	format, err := sink.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	switch format {
	case sink.FormatParquet:
		w, err := sink.NewParquetWriter(cfg.OutputFile, cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		return w, nil
	case sink.FormatPostgres:
		w, err := sink.NewPostgresWriter(ctx, sink.PostgresOptions{
			ConnString:   cfg.ConnectionString(),
			Schema:       cfg.DBSchema,
			DropExisting: cfg.DropExisting,
			CreateIndex:  cfg.CreateIndex,
			Log:          log,
		})
		if err != nil {
			return nil, err
		}
		return w, nil
	}

	c, err := sink.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if cfg.OutputFile == "-" {
		w, err := sink.NewFrameWriter(os.Stdout, c)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	w, err := sink.CreateFrameFile(cfg.OutputFile, c)
	if err != nil {
		return nil, err
	}
	return w, nil
}
