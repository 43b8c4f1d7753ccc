package pipeline

import (
	"context"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/kovalyov-valentin/brinet/internal/model"
	"github.com/kovalyov-valentin/brinet/internal/source"
)

type NewsSource interface {
	ListTopToday(ctx context.Context) ([]model.NewsPost, error)
}

type ImageResolver interface {
	Resolve(ctx context.Context, post model.NewsPost) (*model.Image, error)
}

// NewsPipeline posts a two-post thread for every top post of the day.
type NewsPipeline struct {
	deps   Deps
	source NewsSource
	images ImageResolver
	guard  Guard
}

// NewNewsPipeline builds the news pipeline. images may be nil, in which
// case posts go out without media.
func NewNewsPipeline(deps Deps, src NewsSource, images ImageResolver) *NewsPipeline {
	return &NewsPipeline{
		deps:   deps,
		source: src,
		images: images,
	}
}

func (p *NewsPipeline) Source() string {
	return model.SourceWorldNews
}

// Running reports whether a run is in flight.
func (p *NewsPipeline) Running() bool {
	return p.guard.Running()
}

// Run executes one pass unless another is still in flight, in which case
// it returns ErrRunInFlight.
func (p *NewsPipeline) Run(ctx context.Context) (Report, error) {
	var (
		report Report
		err    error
	)
	if gerr := p.guard.TryRun(func() { report, err = p.run(ctx) }); gerr != nil {
		return Report{Source: model.SourceWorldNews}, gerr
	}
	return report, err
}

func (p *NewsPipeline) run(ctx context.Context) (Report, error) {
	r := newRun(p.deps, model.SourceWorldNews)

	r.stage(StageFetching, nil)
	posts, err := p.source.ListTopToday(ctx)
	if err := r.absorb(err); err != nil {
		r.log.WithField("stage", StageFetching).WithError(err).Error("news listing failed")
		return r.finish(), err
	}
	r.report.Fetched = len(posts)
	r.deps.Metrics.ItemsFetched.WithLabelValues(model.SourceWorldNews).Add(float64(len(posts)))
	if len(posts) == 0 {
		return r.finish(), nil
	}

	r.stage(StageFiltering, logrus.Fields{"candidates": len(posts)})
	unique := lo.UniqBy(posts, func(p model.NewsPost) string { return p.NaturalKey() })
	r.report.Skipped += len(posts) - len(unique)
	fresh := lo.Filter(unique, func(p model.NewsPost, _ int) bool {
		return p.ID != "" && r.unposted(ctx, p.NaturalKey())
	})
	if len(fresh) == 0 {
		return r.finish(), nil
	}

	r.stage(StagePublishing, logrus.Fields{"posts": len(fresh)})
	if err := p.deps.Session.Prepare(ctx); err != nil {
		r.log.WithField("stage", StagePublishing).WithError(err).Error("bluesky session unavailable")
		return r.finish(), err
	}

	for _, post := range fresh {
		if ctx.Err() != nil {
			return r.finish(), ctx.Err()
		}
		// images are fetched one post at a time to bound memory
		image := p.resolveImage(ctx, r, post)
		r.publish(ctx, post.NaturalKey(), post.Permalink, NewsThread(post, image))
	}

	return r.finish(), nil
}

func (p *NewsPipeline) resolveImage(ctx context.Context, r *run, post model.NewsPost) *model.Image {
	if p.images == nil {
		return nil
	}

	image, err := p.images.Resolve(ctx, post)
	if err != nil {
		r.log.WithFields(logrus.Fields{"stage": StageDetailing, "key": post.NaturalKey()}).WithError(err).Info("posting without image")
		return nil
	}
	return image
}

var _ ImageResolver = (*source.ImageResolver)(nil)
