package config

import (
	"context"
	"log/slog"

	"github.com/shiori-lab/shiori/pkg/service/objstore"
	"github.com/shiori-lab/shiori/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Storage holds CLI flags for the media archive bucket
type Storage struct {
	bucket string
	prefix string
}

func (s *Storage) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "storage-bucket",
			Usage:       "Cloud Storage bucket for archived media (in-memory store if empty)",
			Category:    "Storage",
			Destination: &s.bucket,
			Sources:     cli.EnvVars("SHIORI_STORAGE_BUCKET"),
		},
		&cli.StringFlag{
			Name:        "storage-prefix",
			Usage:       "Object key prefix within the bucket",
			Category:    "Storage",
			Destination: &s.prefix,
			Sources:     cli.EnvVars("SHIORI_STORAGE_PREFIX"),
		},
	}
}

func (s Storage) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("bucket", s.bucket),
		slog.String("prefix", s.prefix),
	)
}

// Configure creates the media archive store. Without a bucket it falls back
// to an in-memory store, which loses archives on restart.
func (s *Storage) Configure(ctx context.Context) (objstore.Storage, error) {
	if s.bucket == "" {
		logging.Default().Warn("no storage bucket configured, archived media is kept in memory only")
		return objstore.NewMemory(), nil
	}

	var opts []objstore.Option
	if s.prefix != "" {
		opts = append(opts, objstore.WithPrefix(s.prefix))
	}
	return objstore.NewGCS(ctx, s.bucket, opts...)
}
