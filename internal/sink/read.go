package sink

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wegman-software/georender-go/internal/record"
)

// ReadFile calls fn for every entry of a Parquet file (".parquet") or a
// frame file (anything else)
// Frames carry only record bytes: the id and kind come from the record
// header, and the OSM type is "N" for node records and "W" otherwise.
func ReadFile(ctx context.Context, path string, c Compression, fn func(Entry) error) error {
	if strings.HasSuffix(strings.ToLower(path), ".parquet") {
		return ReadParquet(ctx, path, fn)
	}

	r, err := OpenFrameFile(path, c)
	if err != nil {
		return err
	}
	defer r.Close()

	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}
		kind, _, id, err := record.Header(data)
		if err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}
		osmType := "W"
		if kind == record.KindNode {
			osmType = "N"
		}
		if err := fn(Entry{OsmID: int64(id), OsmType: osmType, Kind: kind, Data: data}); err != nil {
			return err
		}
	}
}
