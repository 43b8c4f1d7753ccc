// Package pipeline turns source items into published threads. Each source
// runs FETCHING → FILTERING → DETAILING → PUBLISHING → RECORDING and returns
// to IDLE, leaving early whenever a stage has nothing left to work on.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kovalyov-valentin/brinet/internal/apperr"
	"github.com/kovalyov-valentin/brinet/internal/metrics"
	"github.com/kovalyov-valentin/brinet/internal/model"
)

const (
	StageIdle       = "idle"
	StageFetching   = "fetching"
	StageFiltering  = "filtering"
	StageDetailing  = "detailing"
	StagePublishing = "publishing"
	StageRecording  = "recording"
)

type Publisher interface {
	Publish(ctx context.Context, post model.ThreadPost) (model.PostRef, error)
}

type Session interface {
	Prepare(ctx context.Context) error
}

type Store interface {
	IsPosted(ctx context.Context, source, key string) (bool, error)
	Store(ctx context.Context, record model.PublishedRecord) (bool, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Deps is everything a pipeline needs from the outside. One set per source,
// built once by the process and shared by all of that source's runs.
type Deps struct {
	Store     Store
	Publisher Publisher
	Session   Session
	Pacer     *Pacer
	Metrics   *metrics.Pipeline
	Log       *logrus.Entry
	Now       func() time.Time
}

type Failure struct {
	Key     string
	Stage   string
	Kind    apperr.Kind
	Message string
}

// Report summarizes one run.
type Report struct {
	Source    string
	StartedAt time.Time
	Duration  time.Duration
	Fetched   int
	// Already posted in an earlier run or repeated within this one
	Skipped   int
	Published int
	Failures  []Failure
}

// run carries the state of one pipeline invocation.
type run struct {
	deps    Deps
	source  string
	log     *logrus.Entry
	started time.Time
	report  Report
}

func newRun(deps Deps, source string) *run {
	return &run{
		deps:    deps,
		source:  source,
		log:     deps.Log,
		started: time.Now(),
		report:  Report{Source: source, StartedAt: deps.now()},
	}
}

func (r *run) stage(stage string, fields logrus.Fields) {
	r.log.WithFields(fields).WithField("stage", stage).Info("pipeline stage")
}

func (r *run) finish() Report {
	r.report.Duration = time.Since(r.started)
	r.deps.Metrics.RunDuration.WithLabelValues(r.source).Observe(r.report.Duration.Seconds())
	r.stage(StageIdle, logrus.Fields{
		"fetched":   r.report.Fetched,
		"skipped":   r.report.Skipped,
		"published": r.report.Published,
		"failed":    len(r.report.Failures),
	})
	return r.report
}

// fail records an item-level failure and keeps the batch going.
func (r *run) fail(key, stage string, err error) {
	kind := apperr.KindOf(err)
	r.report.Failures = append(r.report.Failures, Failure{
		Key:     key,
		Stage:   stage,
		Kind:    kind,
		Message: err.Error(),
	})
	r.deps.Metrics.ThreadFailures.WithLabelValues(r.source, kind.String()).Inc()
	r.log.WithFields(logrus.Fields{
		"key":   key,
		"stage": stage,
		"kind":  kind.String(),
	}).WithError(err).Error("item failed")
}

// absorb splits a source error into item failures, which are recorded, and
// a batch failure, which is returned.
func (r *run) absorb(err error) error {
	if err == nil {
		return nil
	}

	var batch []error
	for _, e := range flatten(err) {
		var ae *apperr.Error
		if errors.As(e, &ae) && ae.Key != "" {
			r.fail(ae.Key, ae.Stage, e)
			continue
		}
		batch = append(batch, e)
	}
	return errors.Join(batch...)
}

func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

// unposted drops keys the store already knows. A failed lookup skips the
// item rather than risk posting it twice.
func (r *run) unposted(ctx context.Context, key string) bool {
	posted, err := r.deps.Store.IsPosted(ctx, r.source, key)
	if err != nil {
		r.fail(key, StageFiltering, apperr.Persistence("is_posted", key, err))
		return false
	}
	if posted {
		r.report.Skipped++
		return false
	}
	return true
}

// publish posts one thread through the pacer and records it once every post
// is up. A thread that fails part way is not recorded.
func (r *run) publish(ctx context.Context, key, permalink string, posts []model.ThreadPost) {
	log := r.log.WithField("key", key)

	var refs []model.PostRef
	err := r.deps.Pacer.Do(ctx, func(ctx context.Context) error {
		var err error
		refs, err = publishThread(ctx, r.deps.Publisher, posts)
		return err
	})
	if err != nil {
		if len(refs) > 0 {
			log = log.WithField("root_uri", refs[0].URI)
		}
		log.WithField("published_posts", len(refs)).Warn("thread incomplete, not recording")
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Publish(StagePublishing, key, err)
		}
		r.fail(key, StagePublishing, err)
		return
	}

	r.report.Published++
	r.deps.Metrics.ThreadsPublished.WithLabelValues(r.source).Inc()
	log.WithFields(logrus.Fields{"stage": StageRecording, "root_uri": refs[0].URI}).Info("thread published")

	inserted, err := r.deps.Store.Store(ctx, model.PublishedRecord{
		Source:      r.source,
		NaturalKey:  key,
		Permalink:   permalink,
		RootURI:     refs[0].URI,
		PublishedAt: r.deps.now(),
	})
	if err != nil {
		r.fail(key, StageRecording, apperr.Persistence("store", key, err))
		return
	}
	if !inserted {
		log.Warn("dedup record already existed")
	}
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
