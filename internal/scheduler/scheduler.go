// Package scheduler runs pipeline passes on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one periodic task. Run errors are logged and the loop keeps going;
// only the context ends it.
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context) error
	Log        *logrus.Entry
}

func (j Job) Start(ctx context.Context) error {
	if j.Interval <= 0 {
		return errors.New("scheduler: job " + j.Name + " has no interval")
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	if j.RunOnStart {
		j.runOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j Job) runOnce(ctx context.Context) {
	log := j.log()

	started := time.Now()
	log.Info("job started")
	if err := j.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.WithError(err).Error("job failed")
		return
	}
	log.WithField("took", time.Since(started).Round(time.Millisecond)).Info("job finished")
}

func (j Job) log() *logrus.Entry {
	if j.Log == nil {
		return logrus.WithField("job", j.Name)
	}
	return j.Log.WithField("job", j.Name)
}
