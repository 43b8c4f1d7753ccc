package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/kovalyov-valentin/brinet/internal/bluesky"
	"github.com/kovalyov-valentin/brinet/internal/bot"
	"github.com/kovalyov-valentin/brinet/internal/bot/middleware"
	"github.com/kovalyov-valentin/brinet/internal/botkit"
	"github.com/kovalyov-valentin/brinet/internal/config"
	"github.com/kovalyov-valentin/brinet/internal/logging"
	"github.com/kovalyov-valentin/brinet/internal/metrics"
	"github.com/kovalyov-valentin/brinet/internal/model"
	"github.com/kovalyov-valentin/brinet/internal/pipeline"
	"github.com/kovalyov-valentin/brinet/internal/report"
	"github.com/kovalyov-valentin/brinet/internal/scheduler"
	"github.com/kovalyov-valentin/brinet/internal/source"
	"github.com/kovalyov-valentin/brinet/internal/storage"
	"github.com/kovalyov-valentin/brinet/internal/summary"
)

type runner interface {
	Source() string
	Running() bool
	Run(ctx context.Context) (pipeline.Report, error)
}

func main() {
	cfg := config.Get()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		return
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var (
		posted          = storage.NewPostedStorage(db)
		pipelineMetrics = metrics.NewPipeline(reg)
		httpClient      = &http.Client{Timeout: 30 * time.Second}
		runners         []runner
	)

	deps := func(sess *bluesky.SessionManager, client *bluesky.Client, log *logrus.Entry) pipeline.Deps {
		return pipeline.Deps{
			Store:     posted,
			Publisher: bluesky.NewPublisher(client),
			Session:   sess,
			Pacer:     pipeline.NewPacer(cfg.PublishDelay, 1),
			Metrics:   pipelineMetrics,
			Log:       log,
			Now:       time.Now,
		}
	}

	if err := cfg.CongressSecrets(); err != nil {
		logger.WithError(err).Warn("congress source disabled")
	} else {
		log := logging.ForSource(logger, model.SourceCongress)
		client := bluesky.NewClient(cfg.BlueskyService)
		sess := newSession(client, cfg.CongressBlueskyHandle, cfg.CongressBlueskyPass, log)

		opts := []source.CongressOption{source.WithCongressBaseURL(cfg.CongressBaseURL)}
		if !cfg.CongressScrapeDisabled {
			renderer := source.NewRodRenderer(cfg.ScrapeUserAgent)
			defer renderer.Close()
			opts = append(opts, source.WithSummaryScraper(source.NewCongressScraper(renderer, log)))
		}

		bills := source.NewCongressSource(
			cfg.CongressAPIKey,
			cfg.IsDev(),
			source.NewHTTPGetter(httpClient, cfg.ScrapeUserAgent, source.DefaultRetryConfig()),
			log,
			opts...,
		)
		runners = append(runners, pipeline.NewBillPipeline(
			deps(sess, client, log),
			bills,
			summary.NewOpenAISummarizer(cfg.OpenAIKey, cfg.OpenAIPrompt, log),
			cfg.SponsorBudget,
		))
	}

	if err := cfg.WorldNewsSecrets(); err != nil {
		logger.WithError(err).Warn("worldnews source disabled")
	} else {
		log := logging.ForSource(logger, model.SourceWorldNews)
		client := bluesky.NewClient(cfg.BlueskyService)
		sess := newSession(client, cfg.WorldNewsBlueskyHandle, cfg.WorldNewsBlueskyPass, log)
		getter := source.NewHTTPGetter(httpClient, cfg.RedditUserAgent, source.DefaultRetryConfig())

		var posts pipeline.NewsSource
		if cfg.RedditMode == "feed" {
			posts = source.NewRedditFeedSource(getter, cfg.RedditSubreddit, cfg.IsDev())
		} else {
			posts = source.NewRedditSource(
				source.RedditCredentials{
					ID:       cfg.RedditAppID,
					Secret:   cfg.RedditAppSecret,
					Username: cfg.RedditUsername,
					Password: cfg.RedditPassword,
				},
				cfg.RedditUserAgent,
				cfg.RedditSubreddit,
				cfg.IsDev(),
				source.WithRedditHTTPClient(httpClient),
			)
		}

		runners = append(runners, pipeline.NewNewsPipeline(
			deps(sess, client, log),
			posts,
			source.NewImageResolver(getter, log),
		))
	}

	if len(runners) == 0 {
		logger.Error("no source is configured, nothing to do")
		return
	}

	var (
		botAPI   *tgbotapi.BotAPI
		reporter *report.Reporter
	)
	if cfg.TelegramBotToken != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			logger.WithError(err).Error("failed to create telegram bot, continuing without it")
		} else {
			reporter = report.New(botAPI, cfg.TelegramChatID, logger.WithField("component", "report"))
		}
	}

	onDone := func(ctx context.Context, r pipeline.Report, err error) {
		if reporter == nil {
			return
		}
		if err := reporter.Report(ctx, r, err); err != nil {
			logger.WithError(err).WithField("source", r.Source).Error("failed to send run report")
		}
	}

	var wg sync.WaitGroup
	for _, r := range runners {
		job := scheduler.Job{
			Name:       r.Source(),
			Interval:   intervalFor(cfg, r.Source()),
			RunOnStart: cfg.RunOnStart,
			Log:        logger.WithField("component", "scheduler"),
			Run: func(ctx context.Context) error {
				rep, err := r.Run(ctx)
				if errors.Is(err, pipeline.ErrRunInFlight) {
					return err
				}
				onDone(ctx, rep, err)
				return err
			},
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := job.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).WithField("job", job.Name).Error("scheduler stopped")
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveMetrics(ctx, cfg.MetricsAddr, reg, logger)
		}()
	}

	if botAPI != nil {
		adminBot := botkit.New(botAPI, logger.WithField("component", "bot"))
		adminBot.Handle(
			"history",
			middleware.AdminOnly(cfg.TelegramChatID, bot.ViewCmdHistory(posted)),
		)
		adminBot.Handle(
			"run",
			middleware.AdminOnly(cfg.TelegramChatID, bot.ViewCmdRun(ctx, onDone, botRunners(runners)...)),
		)

		if err := adminBot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("bot stopped")
		}
	}

	<-ctx.Done()
	wg.Wait()
	logger.Info("stopped")
}

func newSession(client *bluesky.Client, handle, password string, log *logrus.Entry) *bluesky.SessionManager {
	return bluesky.NewSessionManager(
		client,
		bluesky.Credentials{Identifier: handle, Password: password},
		log,
		bluesky.WithPersistHook(func(s bluesky.SessionState) {
			log.WithField("refreshed_at", s.LastRefreshedAt).Info("bluesky session updated")
		}),
	)
}

func intervalFor(cfg config.Config, src string) time.Duration {
	if src == model.SourceCongress {
		return cfg.CongressInterval
	}
	return cfg.RedditInterval
}

func botRunners(runners []runner) []bot.Runner {
	out := make([]bot.Runner, 0, len(runners))
	for _, r := range runners {
		out = append(out, r)
	}
	return out
}

func serveMetrics(ctx context.Context, addr string, g prometheus.Gatherer, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("metrics server stopped")
	}
}
