// Package archive fetches hourly event files from the public archive
// endpoint into the raw layer directory tree.
package archive

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/coder/retry"
	"github.com/gharvest/gharvest/internal/config"
	"github.com/gharvest/gharvest/internal/errors"
	"github.com/gharvest/gharvest/pkg/types"
)

// Downloader fetches raw archive files for a range of hour buckets.
type Downloader struct {
	cfg    config.ArchiveConfig
	rawDir string
	client *http.Client
	logger *slog.Logger
}

// NewDownloader creates a downloader writing under rawDir.
func NewDownloader(cfg config.ArchiveConfig, rawDir string, logger *slog.Logger) *Downloader {
	return &Downloader{
		cfg:    cfg,
		rawDir: rawDir,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Hours enumerates every hour bucket between two dates, inclusive on both
// sides: 24 buckets per calendar day.
func Hours(startDate, endDate string) ([]types.HourKey, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("invalid start date %q", startDate))
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("invalid end date %q", endDate))
	}
	if end.Before(start) {
		return nil, errors.NewConfigError(fmt.Sprintf("end date %s precedes start date %s", endDate, startDate))
	}

	var keys []types.HourKey
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for h := 0; h < 24; h++ {
			keys = append(keys, types.HourKeyFromTime(d.Add(time.Duration(h)*time.Hour)))
		}
	}
	return keys, nil
}

// URL returns the archive endpoint URL for one hour bucket. The hour in
// the remote file name is unpadded.
func (d *Downloader) URL(key types.HourKey) string {
	return fmt.Sprintf("%s/%s", d.cfg.BaseURL, key.ArchiveName())
}

// LocalPath returns where the raw file for an hour bucket lives on disk.
func (d *Downloader) LocalPath(key types.HourKey) string {
	return filepath.Join(d.rawDir, key.DateDir(), key.ArchiveName())
}

// Fetch downloads one hour bucket. A file that already exists locally is
// left untouched and reported as skipped. The download streams through a
// temporary file and is verified as a readable gzip stream before the
// rename, so a truncated transfer never masquerades as a finished archive.
func (d *Downloader) Fetch(ctx context.Context, key types.HourKey) (skipped bool, err error) {
	dest := d.LocalPath(key)
	if _, err := os.Stat(dest); err == nil {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return false, errors.NewIOError(errors.CategoryArchive, "failed to create raw directory", err)
	}

	url := d.URL(key)
	var lastErr error
	r := retry.New(d.cfg.RetryDelay, d.cfg.RetryDelay*8)
	for attempt := 0; attempt <= d.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			d.logger.Warn("retrying archive download", "url", url, "attempt", attempt, "error", lastErr)
			if !r.Wait(ctx) {
				return false, ctx.Err()
			}
		}
		lastErr = d.fetchOnce(ctx, url, dest)
		if lastErr == nil {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, lastErr
		}
	}

	return false, errors.Wrap(errors.CategoryArchive, errors.CodeDownloadFailed,
		fmt.Sprintf("failed to download %s after %d attempts", url, d.cfg.RetryAttempts+1), lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("archive: failed to build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("archive: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("archive: unexpected status %s for %s", resp.Status, url)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("archive: failed to create temp file: %w", err)
	}
	defer os.Remove(tmp)

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("archive: transfer failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("archive: failed to close temp file: %w", err)
	}

	if err := verifyGzip(tmp); err != nil {
		return err
	}

	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("archive: failed to finalize download: %w", err)
	}
	return nil
}

// verifyGzip confirms the file is a complete gzip stream by reading it to
// the end.
func verifyGzip(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: failed to open downloaded file: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(errors.CategoryArchive, errors.CodeCorruptArchive, "downloaded file is not gzip", err)
	}
	defer zr.Close()

	if _, err := io.Copy(io.Discard, zr); err != nil {
		return errors.Wrap(errors.CategoryArchive, errors.CodeCorruptArchive, "downloaded gzip stream is truncated", err)
	}
	return nil
}
