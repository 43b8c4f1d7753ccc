package pipeline

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/kovalyov-valentin/brinet/internal/model"
	"github.com/kovalyov-valentin/brinet/internal/source"
)

type BillSource interface {
	ListUpdatedToday(ctx context.Context, now time.Time) ([]model.Bill, error)
}

// BillPipeline posts a three-post thread for every bill updated today.
type BillPipeline struct {
	deps          Deps
	source        BillSource
	summarizer    Summarizer
	sponsorBudget int
	guard         Guard
}

// NewBillPipeline builds the bill pipeline. summarizer may be nil.
func NewBillPipeline(deps Deps, src BillSource, summarizer Summarizer, sponsorBudget int) *BillPipeline {
	return &BillPipeline{
		deps:          deps,
		source:        src,
		summarizer:    summarizer,
		sponsorBudget: sponsorBudget,
	}
}

func (p *BillPipeline) Source() string {
	return model.SourceCongress
}

// Running reports whether a run is in flight.
func (p *BillPipeline) Running() bool {
	return p.guard.Running()
}

// Run executes one pass unless another is still in flight, in which case
// it returns ErrRunInFlight.
func (p *BillPipeline) Run(ctx context.Context) (Report, error) {
	var (
		report Report
		err    error
	)
	if gerr := p.guard.TryRun(func() { report, err = p.run(ctx) }); gerr != nil {
		return Report{Source: model.SourceCongress}, gerr
	}
	return report, err
}

func (p *BillPipeline) run(ctx context.Context) (Report, error) {
	r := newRun(p.deps, model.SourceCongress)

	r.stage(StageFetching, nil)
	bills, err := p.source.ListUpdatedToday(ctx, r.report.StartedAt)
	if err := r.absorb(err); err != nil {
		r.log.WithField("stage", StageFetching).WithError(err).Error("bill listing failed")
		return r.finish(), err
	}
	r.report.Fetched = len(bills)
	r.deps.Metrics.ItemsFetched.WithLabelValues(model.SourceCongress).Add(float64(len(bills)))
	if len(bills) == 0 {
		return r.finish(), nil
	}

	r.stage(StageFiltering, logrus.Fields{"candidates": len(bills)})
	unique := lo.UniqBy(bills, func(b model.Bill) string { return b.NaturalKey() })
	r.report.Skipped += len(bills) - len(unique)
	fresh := lo.Filter(unique, func(b model.Bill, _ int) bool {
		return r.unposted(ctx, b.NaturalKey())
	})
	if len(fresh) == 0 {
		return r.finish(), nil
	}

	r.stage(StageDetailing, logrus.Fields{"bills": len(fresh)})
	for i := range fresh {
		fresh[i].SummaryText = p.condense(ctx, r, fresh[i])
	}

	r.stage(StagePublishing, logrus.Fields{"bills": len(fresh)})
	if err := p.deps.Session.Prepare(ctx); err != nil {
		r.log.WithField("stage", StagePublishing).WithError(err).Error("bluesky session unavailable")
		return r.finish(), err
	}

	for _, bill := range fresh {
		if ctx.Err() != nil {
			return r.finish(), ctx.Err()
		}
		pageURL, _ := source.BillPageURL(bill.Congress, bill.Type, bill.Number)
		r.publish(ctx, bill.NaturalKey(), pageURL, BillThread(bill, p.sponsorBudget))
	}

	return r.finish(), nil
}

// condense shortens the summary when a summarizer is configured. Any failure
// keeps the original text.
func (p *BillPipeline) condense(ctx context.Context, r *run, bill model.Bill) string {
	if p.summarizer == nil {
		return bill.SummaryText
	}

	short, err := p.summarizer.Summarize(ctx, bill.SummaryText)
	if err != nil || short == "" {
		r.log.WithFields(logrus.Fields{"stage": StageDetailing, "key": bill.NaturalKey()}).WithError(err).Warn("summarizer failed, using raw summary")
		return bill.SummaryText
	}
	return short
}
