package config

import (
	"time"

	"github.com/shiori-lab/shiori/pkg/service/dispatcher"
	"github.com/urfave/cli/v3"
)

// Dispatcher holds CLI flags for the job worker pool
type Dispatcher struct {
	workers    int
	maxRetries int
	backoff    time.Duration
	staleAfter time.Duration
}

func (d *Dispatcher) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "dispatcher-workers",
			Usage:       "Number of job workers",
			Category:    "Dispatcher",
			Value:       4,
			Sources:     cli.EnvVars("SHIORI_DISPATCHER_WORKERS"),
			Destination: &d.workers,
		},
		&cli.IntFlag{
			Name:        "dispatcher-max-retries",
			Usage:       "Retries per job for transient failures",
			Category:    "Dispatcher",
			Value:       3,
			Sources:     cli.EnvVars("SHIORI_DISPATCHER_MAX_RETRIES"),
			Destination: &d.maxRetries,
		},
		&cli.DurationFlag{
			Name:        "dispatcher-retry-backoff",
			Usage:       "Base backoff between retries (doubles per attempt)",
			Category:    "Dispatcher",
			Value:       500 * time.Millisecond,
			Sources:     cli.EnvVars("SHIORI_DISPATCHER_RETRY_BACKOFF"),
			Destination: &d.backoff,
		},
		&cli.DurationFlag{
			Name:        "dispatcher-stale-after",
			Usage:       "Age after which a processing job is considered abandoned",
			Category:    "Dispatcher",
			Value:       5 * time.Minute,
			Sources:     cli.EnvVars("SHIORI_DISPATCHER_STALE_AFTER"),
			Destination: &d.staleAfter,
		},
	}
}

// Options converts the flags into dispatcher options
func (d *Dispatcher) Options() []dispatcher.Option {
	return []dispatcher.Option{
		dispatcher.WithWorkers(d.workers),
		dispatcher.WithMaxRetries(d.maxRetries),
		dispatcher.WithRetryBackoff(d.backoff),
		dispatcher.WithStaleAfter(d.staleAfter),
	}
}
