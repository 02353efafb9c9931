package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/georender-go/internal/config"
	"github.com/wegman-software/georender-go/internal/dispatch"
	"github.com/wegman-software/georender-go/internal/expire"
	"github.com/wegman-software/georender-go/internal/logger"
	"github.com/wegman-software/georender-go/internal/nodeindex"
	"github.com/wegman-software/georender-go/internal/osc"
	"github.com/wegman-software/georender-go/internal/pipeline"
	"github.com/wegman-software/georender-go/internal/point"
	"github.com/wegman-software/georender-go/internal/record"
	"github.com/wegman-software/georender-go/internal/replication"
	"github.com/wegman-software/georender-go/internal/sink"
)

var (
	replicationSource string
	stateFile         string
	diffCacheDir      string
	expireTiles       string
	expireOutput      string
)

var encodeChangesCmd = &cobra.Command{
	Use:   "encode-changes [change.osc[.gz]]",
	Short: "Encode the created and modified elements of an OSM change file",
	Long: `Encode an OsmChange diff into georender records.

Created and modified nodes, ways and multipolygon relations are encoded the
same way encode does. Positions of nodes the diff does not carry come from
the --flat-nodes file of an earlier encode run; without it only nodes in the
diff resolve. Deletions are counted but produce no records.

With --replication and --state-file the next diff after the recorded
sequence is downloaded from a replication server (planet-minute,
planet-hour, planet-day, geofabrik/<region> or a URL) and encoded; the
state file advances only when the encode succeeds.

With --expire-tiles the web map tiles under every written record are
appended to --expire-output as z/x/y lines.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runEncodeChanges,
}

func init() {
	rootCmd.AddCommand(encodeChangesCmd)

	encodeChangesCmd.Flags().StringVarP(&cfg.OutputFile, "output", "o", "", "Output file (\"-\" writes frames to stdout)")
	encodeChangesCmd.Flags().StringVarP(&cfg.Format, "format", "f", cfg.Format, "Output format: frames, parquet or postgres")
	encodeChangesCmd.Flags().StringVarP(&cfg.Compression, "compression", "c", cfg.Compression, "Frame compression: none or zstd")
	encodeChangesCmd.Flags().StringVarP(&cfg.StyleFile, "style", "S", "", "Class table (.yaml) or classify script (.lua)")
	encodeChangesCmd.Flags().StringVarP(&bboxStr, "bbox", "b", "", "Bounding box filter: minlon,minlat,maxlon,maxlat")
	encodeChangesCmd.Flags().StringVar(&cfg.FlatNodesFile, "flat-nodes", "", "Flat nodes file written by a previous encode")
	encodeChangesCmd.Flags().BoolVar(&cfg.SkipNodes, "skip-nodes", false, "Do not encode point features")
	encodeChangesCmd.Flags().BoolVar(&cfg.SkipWays, "skip-ways", false, "Do not encode ways")
	encodeChangesCmd.Flags().BoolVar(&cfg.SkipRelations, "skip-relations", false, "Do not assemble relations")
	encodeChangesCmd.Flags().StringVar(&replicationSource, "replication", "", "Replication source to fetch the next diff from")
	encodeChangesCmd.Flags().StringVar(&stateFile, "state-file", "", "Replication state of the last encoded diff")
	encodeChangesCmd.Flags().StringVar(&expireTiles, "expire-tiles", "", "Zoom or zoom range (e.g. 10-14) of tiles to expire")
	encodeChangesCmd.Flags().StringVar(&expireOutput, "expire-output", "dirty_tiles", "File the expired tiles are appended to")
	encodeChangesCmd.Flags().StringVar(&diffCacheDir, "cache-dir", "", "Directory for downloaded diffs (default: next to the state file)")
}

func runEncodeChanges(cmd *cobra.Command, args []string) {
	log := logger.Get()

	var tracker *expire.Tracker
	if expireTiles != "" {
		minZoom, maxZoom, err := expire.ParseZoomRange(expireTiles)
		if err == nil {
			tracker, err = expire.NewTracker(minZoom, maxZoom)
		}
		if err != nil {
			exitWithError("invalid --expire-tiles", err)
		}
	}

	ctx, cancel := commandContext()
	defer cancel()

	var fetched *replication.State
	switch {
	case replicationSource != "" && len(args) == 1:
		exitWithError("give either a change file or --replication, not both", nil)
	case replicationSource != "":
		path, next, err := fetchNextDiff(ctx, log)
		if errors.Is(err, replication.ErrUpToDate) {
			log.Info("Already at the latest replication sequence")
			return
		}
		if err != nil {
			exitWithError("failed to fetch the next diff", err)
		}
		cfg.InputFile = path
		fetched = next
	case len(args) == 1:
		cfg.InputFile = args[0]
	default:
		exitWithError("a change file or --replication is required", nil)
	}

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

	var base nodeindex.Lookup
	if cfg.FlatNodesFile != "" {
		idx, err := nodeindex.OpenMmapIndex(cfg.FlatNodesFile)
		if err != nil {
			exitWithError("failed to open flat nodes", err)
		}
		defer idx.Close()
		base = idx
	} else {
		log.Warn("No --flat-nodes file; only nodes in the change file will resolve")
	}

	log.Info("Starting change encode",
		zap.String("input", cfg.InputFile),
		zap.String("format", cfg.Format),
		zap.String("flat_nodes", cfg.FlatNodesFile))

	w, err := openSink(ctx, cfg, log)
	if err != nil {
		exitWithError("failed to open output", err)
	}
	counter := sink.NewCounter(w)
	var out sink.Writer = counter
	if tracker != nil {
		out = tracker.Wrap(counter, record.Decoder{Points: pf})
	}

	parser := osc.NewParser()
	changes, errs := parser.ParseFile(ctx, cfg.InputFile)

	stats, err := pipeline.NewEncoder(cfg, disp, cls.filters, log).RunChanges(ctx, changes, errs, base, out)
	if err != nil {
		exitWithError("change encode failed", err)
	}

	parsed := parser.Stats()
	log.Info("Change encode complete",
		zap.Duration("total_time", stats.Duration.Round(time.Millisecond)),
		zap.Int64("changes", parsed.Total()),
		zap.Int64("nodes_created", parsed.NodesCreated),
		zap.Int64("nodes_modified", parsed.NodesModified),
		zap.Int64("ways_created", parsed.WaysCreated),
		zap.Int64("ways_modified", parsed.WaysModified),
		zap.Int64("relations_created", parsed.RelationsCreated),
		zap.Int64("relations_modified", parsed.RelationsModified),
		zap.Int64("deleted", stats.Deleted),
		zap.Int64("records", stats.Records()),
		zap.Int64("missing_member_ways", stats.MissingChains),
		zap.String("record_bytes", humanize.IBytes(uint64(counter.Bytes))),
	)

	if tracker != nil {
		if err := tracker.AppendToFile(expireOutput, log); err != nil {
			exitWithError("failed to write expired tiles", err)
		}
	}

	if fetched != nil {
		if err := replication.WriteStateFile(stateFile, fetched); err != nil {
			exitWithError("failed to save replication state", err)
		}
		log.Info("Replication state advanced",
			zap.Int64("sequence", fetched.Sequence),
			zap.Time("timestamp", fetched.Timestamp))
	}
}

// fetchNextDiff downloads the diff after the one recorded in --state-file
func fetchNextDiff(ctx context.Context, log *zap.Logger) (string, *replication.State, error) {
	if stateFile == "" {
		return "", nil, errors.New("--replication needs --state-file")
	}
	src, err := replication.ParseSource(replicationSource)
	if err != nil {
		return "", nil, err
	}
	local, err := replication.ReadStateFile(stateFile)
	if err != nil {
		return "", nil, err
	}

	dir := diffCacheDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(stateFile), "diffs")
	}
	log.Info("Checking for replication updates",
		zap.String("source", src.Name),
		zap.Int64("sequence", local.Sequence))

	return replication.NewFetcher(src, dir, log).Next(ctx, local)
}
