// Package bronze ingests raw archive files into the Bronze layer: every
// event line preserved verbatim alongside its content hash, provenance
// metadata and a handful of quick-access columns.
package bronze

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gharvest/gharvest/internal/errors"
	"github.com/gharvest/gharvest/internal/event"
	"github.com/gharvest/gharvest/internal/table"
	"github.com/gharvest/gharvest/pkg/types"
	"github.com/golang/snappy"
)

// maxLineSize bounds a single event line. Archive lines with huge push
// payloads run into the megabytes.
const maxLineSize = 32 * 1024 * 1024

// Schema describes a Bronze partition table.
func Schema() types.Schema {
	return types.Schema{
		Table: "bronze_events",
		Columns: []types.Column{
			{Name: "event_hash", Type: types.ColText},
			{Name: "event_id", Type: types.ColText},
			{Name: "event_type", Type: types.ColText},
			{Name: "created_at", Type: types.ColText},
			{Name: "actor_id", Type: types.ColInteger},
			{Name: "actor_login", Type: types.ColText},
			{Name: "repo_id", Type: types.ColInteger},
			{Name: "repo_name", Type: types.ColText},
			{Name: "org_id", Type: types.ColInteger},
			{Name: "file_name", Type: types.ColText},
			{Name: "file_date", Type: types.ColText},
			{Name: "hour_bucket", Type: types.ColText},
			{Name: "processed_at", Type: types.ColText},
			{Name: "raw_data", Type: types.ColBlob},
		},
	}
}

// Result summarizes processing of one archive file.
type Result struct {
	Key        types.HourKey
	Skipped    bool
	Records    int
	Malformed  int
	OutputPath string
}

// Builder converts raw archive files into Bronze partitions.
type Builder struct {
	bronzeDir string
	batchSize int
	writer    *table.Writer
	logger    *slog.Logger
}

// NewBuilder creates a Bronze builder writing under bronzeDir.
func NewBuilder(bronzeDir string, batchSize int, writer *table.Writer, logger *slog.Logger) *Builder {
	return &Builder{
		bronzeDir: bronzeDir,
		batchSize: batchSize,
		writer:    writer,
		logger:    logger,
	}
}

// BasePath returns the extension-less Bronze output path for an hour bucket.
func (b *Builder) BasePath(key types.HourKey) string {
	stem := fmt.Sprintf("%d-%02d-%02d-%d.bronze", key.Year, key.Month, key.Day, key.Hour)
	return filepath.Join(b.bronzeDir, key.DateDir(), stem)
}

// Process transforms one raw archive file into a Bronze partition,
// streaming rows into the output in batches of the configured size so an
// hourly archive never has to fit in memory at once. A partition that
// already exists in either format is left alone and the unit reports as
// skipped. Malformed lines are counted and dropped, never fatal; a file
// where every line is malformed still fails with an empty input error.
func (b *Builder) Process(ctx context.Context, rawPath string, key types.HourKey) (*Result, error) {
	res := &Result{Key: key}

	base := b.BasePath(key)
	if existing := table.ExistingPath(base); existing != "" {
		res.Skipped = true
		res.OutputPath = existing
		return res, nil
	}

	f, err := os.Open(rawPath)
	if err != nil {
		return nil, errors.NewIOError(errors.CategoryBronze, fmt.Sprintf("failed to open archive %s", rawPath), err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryBronze, errors.CodeCorruptArchive,
			fmt.Sprintf("archive %s is not gzip", rawPath), err)
	}
	defer zr.Close()

	fileName := filepath.Base(rawPath)
	processedAt := time.Now().UTC().Format(time.RFC3339)

	appender, err := b.writer.Appender(ctx, base, Schema())
	if err != nil {
		return nil, err
	}

	batchSize := b.batchSize
	if batchSize < 1 {
		batchSize = 10000
	}
	batch := make([]types.Record, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := appender.Append(batch); err != nil {
			return err
		}
		res.Records += len(batch)
		batch = batch[:0]
		b.logger.Debug("bronze ingest progress", "file", fileName, "records", res.Records)
		return nil
	}

	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			appender.Abort()
			return nil, err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		ev, err := event.Parse(line)
		if err != nil {
			res.Malformed++
			continue
		}

		hash, err := event.CanonicalHash(ev.Raw)
		if err != nil {
			res.Malformed++
			continue
		}

		rec := types.Record{
			"event_hash":   hash,
			"event_id":     ev.ID,
			"event_type":   ev.Type,
			"created_at":   ev.CreatedAt,
			"file_name":    fileName,
			"file_date":    key.Date(),
			"hour_bucket":  key.String(),
			"processed_at": processedAt,
			"raw_data":     snappy.Encode(nil, line),
		}
		if ev.Actor != nil {
			rec["actor_id"] = ev.Actor.ID
			rec["actor_login"] = ev.Actor.Login
		}
		if ev.Repo != nil {
			rec["repo_id"] = ev.Repo.ID
			rec["repo_name"] = ev.Repo.Name
		}
		if ev.Org != nil {
			rec["org_id"] = ev.Org.ID
		}
		batch = append(batch, rec)

		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				appender.Abort()
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		appender.Abort()
		return nil, errors.Wrap(errors.CategoryBronze, errors.CodeCorruptArchive,
			fmt.Sprintf("failed reading archive %s", rawPath), err)
	}
	if err := flush(); err != nil {
		appender.Abort()
		return nil, err
	}

	if res.Malformed > 0 {
		b.logger.Warn("dropped malformed event lines", "file", fileName, "count", res.Malformed)
	}

	if res.Records == 0 {
		appender.Abort()
		return nil, errors.NewEmptyInputError(errors.CategoryBronze,
			fmt.Sprintf("archive %s produced no valid events", rawPath))
	}

	path, err := appender.Finalize()
	if err != nil {
		appender.Abort()
		return nil, err
	}

	res.OutputPath = path
	return res, nil
}

// DecodeRaw decompresses a stored raw_data value back to the original
// event line. Values read from delimited text arrive as strings.
func DecodeRaw(v interface{}) ([]byte, error) {
	var compressed []byte
	switch val := v.(type) {
	case []byte:
		compressed = val
	case string:
		compressed = []byte(val)
	default:
		return nil, fmt.Errorf("bronze: unexpected raw_data type %T", v)
	}
	decoded, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("bronze: failed to decompress raw_data: %w", err)
	}
	return decoded, nil
}
