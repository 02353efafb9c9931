package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/georender-go/internal/label"
	"github.com/wegman-software/georender-go/internal/logger"
	"github.com/wegman-software/georender-go/internal/point"
	"github.com/wegman-software/georender-go/internal/record"
	"github.com/wegman-software/georender-go/internal/sink"
	"github.com/wegman-software/georender-go/internal/style"
)

var (
	dumpOutput    string
	dumpStyle     string
	dumpLimit     int
	dumpTriangles bool
)

var errLimit = errors.New("limit reached")

var dumpCmd = &cobra.Command{
	Use:   "dump <records>",
	Short: "Write records as a GeoJSON FeatureCollection",
	Long: `Decode a frame or Parquet file of georender records and write them as a
GeoJSON FeatureCollection. Each feature carries the record's id, kind,
class (and class name when the style table knows it) and its names.

Areas are written as their rings, or with --triangles as the triangles
a renderer fills.`,
	Args: cobra.ExactArgs(1),
	Run:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "-", "GeoJSON output file (\"-\" for stdout)")
	dumpCmd.Flags().StringVarP(&dumpStyle, "style", "S", "", "Class table (.yaml) used to name classes")
	dumpCmd.Flags().StringVarP(&cfg.Compression, "compression", "c", cfg.Compression, "Frame compression: none or zstd")
	dumpCmd.Flags().IntVarP(&dumpLimit, "limit", "n", 0, "Stop after this many records (0 = all)")
	dumpCmd.Flags().BoolVar(&dumpTriangles, "triangles", false, "Write areas as their triangulation")
}

func runDump(cmd *cobra.Command, args []string) {
	log := logger.Get()

	pf, err := point.ParseFormat(cfg.PointFormat)
	if err != nil {
		exitWithError("invalid point format", err)
	}
	c, err := sink.ParseCompression(cfg.Compression)
	if err != nil {
		exitWithError("invalid compression", err)
	}

	styleCfg := style.DefaultConfig()
	if dumpStyle != "" {
		if styleCfg, err = style.LoadConfig(dumpStyle); err != nil {
			exitWithError("failed to load style", err)
		}
	}
	classes := style.NewClassifier(styleCfg)

	ctx, cancel := commandContext()
	defer cancel()

	fc := geojson.NewFeatureCollection()
	dec := record.Decoder{Points: pf}
	err = sink.ReadFile(ctx, args[0], c, func(e sink.Entry) error {
		if dumpLimit > 0 && len(fc.Features) >= dumpLimit {
			return errLimit
		}
		f, err := recordFeature(dec, e, classes, dumpTriangles)
		if err != nil {
			return fmt.Errorf("%s%d: %w", e.OsmType, e.OsmID, err)
		}
		fc.Append(f)
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		exitWithError("failed to read records", err)
	}

	var out io.Writer = os.Stdout
	if dumpOutput != "-" {
		f, err := os.Create(dumpOutput)
		if err != nil {
			exitWithError("failed to create output", err)
		}
		defer f.Close()
		out = f
	}
	if err := json.NewEncoder(out).Encode(fc); err != nil {
		exitWithError("failed to write GeoJSON", err)
	}

	log.Info("Dump complete",
		zap.String("input", args[0]),
		zap.Int("features", len(fc.Features)))
}

// recordFeature decodes one entry into a GeoJSON feature
func recordFeature(dec record.Decoder, e sink.Entry, classes *style.Classifier, triangles bool) (*geojson.Feature, error) {
	rec, err := dec.Decode(e.Data)
	if err != nil {
		return nil, err
	}

	geom := rec.Geometry()
	if triangles && rec.Kind == record.KindArea {
		mp := make(orb.MultiPolygon, 0, len(rec.Cells)/3)
		for _, tri := range rec.Triangles() {
			mp = append(mp, orb.Polygon{tri})
		}
		geom = mp
	}

	f := geojson.NewFeature(geom)
	f.ID = fmt.Sprintf("%s%d", e.OsmType, rec.ID)
	f.Properties["id"] = rec.ID
	f.Properties["kind"] = rec.Kind.String()
	f.Properties["class"] = rec.Class
	if name := classes.Name(rec.Class); name != "" {
		f.Properties["class_name"] = name
	}

	names, err := label.Entries(rec.Label)
	if err != nil {
		return nil, err
	}
	for lang, text := range names {
		if lang == "" {
			f.Properties["name"] = text
		} else {
			f.Properties["name:"+lang] = text
		}
	}
	return f, nil
}
