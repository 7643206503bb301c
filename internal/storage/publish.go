package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gharvest/gharvest/internal/errors"
)

// PublishResult summarizes one publish run.
type PublishResult struct {
	Uploaded int
	Skipped  int
	Bytes    int64
}

// Publisher mirrors local layer trees into object storage.
type Publisher struct {
	store  ObjectStorage
	prefix string
	logger *slog.Logger
}

// NewPublisher creates a publisher writing under the given key prefix.
func NewPublisher(store ObjectStorage, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, prefix: strings.Trim(prefix, "/"), logger: logger}
}

// PublishTree uploads every file under dir, keyed by layer name plus the
// file's path relative to dir. Files already present in the store are
// skipped, so republishing after a partial failure only moves what is
// missing.
func (p *Publisher) PublishTree(ctx context.Context, layer, dir string) (*PublishResult, error) {
	res := &PublishResult{}

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := p.key(layer, rel)

		exists, err := p.store.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			res.Skipped++
			return nil
		}

		if err := p.store.Upload(ctx, path, key); err != nil {
			return err
		}
		p.logger.Debug("published object", "key", key, "bytes", info.Size())
		res.Uploaded++
		res.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.CategoryStorage, errors.CodeUploadFailed,
			fmt.Sprintf("failed to publish %s layer", layer), err)
	}

	return res, nil
}

func (p *Publisher) key(layer, rel string) string {
	parts := []string{layer, filepath.ToSlash(rel)}
	if p.prefix != "" {
		parts = append([]string{p.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}
