package config

import (
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
	"github.com/joho/godotenv"

	"github.com/kovalyov-valentin/brinet/internal/apperr"
)

// Config is read from ./config.hcl, ./config.local.hcl and the environment.
// Secret env names match the ones the deployment already exports.
type Config struct {
	Environment string `hcl:"environment" env:"ENVIRONMENT" default:"prod"`
	LogLevel    string `hcl:"log_level" env:"LOG_LEVEL" default:"info"`

	DatabaseDriver string `hcl:"database_driver" env:"DATABASE_DRIVER" default:"sqlite"`
	DatabaseDSN    string `hcl:"database_dsn" env:"DATABASE_DSN" default:"brinet.db"`

	CongressAPIKey         string        `hcl:"congress_api_key" env:"CONGRESS_API_KEY"`
	CongressBaseURL        string        `hcl:"congress_base_url" env:"CONGRESS_BASE_URL" default:"https://api.congress.gov/v3"`
	CongressInterval       time.Duration `hcl:"congress_interval" env:"CONGRESS_INTERVAL" default:"24h"`
	CongressBlueskyHandle  string        `hcl:"congress_bluesky_username" env:"CONGRESS_TRACKER_BLUESKY_USERNAME"`
	CongressBlueskyPass    string        `hcl:"congress_bluesky_password" env:"CONGRESS_TRACKER_BLUESKY_PASSWORD"`
	ScrapeUserAgent        string        `hcl:"scrape_user_agent" env:"SCRAPE_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"`
	SponsorBudget          int           `hcl:"sponsor_budget" env:"SPONSOR_BUDGET" default:"250"`
	CongressScrapeDisabled bool          `hcl:"congress_scrape_disabled" env:"CONGRESS_SCRAPE_DISABLED"`

	RedditMode             string        `hcl:"reddit_mode" env:"REDDIT_MODE" default:"api"`
	RedditAppID            string        `hcl:"reddit_app_id" env:"REDDIT_APP_ID"`
	RedditAppSecret        string        `hcl:"reddit_app_secret" env:"REDDIT_APP_SECRET"`
	RedditUsername         string        `hcl:"reddit_username" env:"REDDIT_USERNAME"`
	RedditPassword         string        `hcl:"reddit_password" env:"REDDIT_PASSWORD"`
	RedditUserAgent        string        `hcl:"reddit_user_agent" env:"REDDIT_USER_AGENT" default:"brinet/1.0 (worldnews thread bot)"`
	RedditSubreddit        string        `hcl:"reddit_subreddit" env:"REDDIT_SUBREDDIT" default:"worldnews"`
	RedditInterval         time.Duration `hcl:"reddit_interval" env:"REDDIT_INTERVAL" default:"24h"`
	WorldNewsBlueskyHandle string        `hcl:"worldnews_bluesky_username" env:"REDDIT_WORLDNEWS_BLUESKY_USERNAME"`
	WorldNewsBlueskyPass   string        `hcl:"worldnews_bluesky_password" env:"REDDIT_WORLDNEWS_BLUESKY_PASSWORD"`

	BlueskyService string        `hcl:"bluesky_service" env:"BLUESKY_SERVICE" default:"https://bsky.social"`
	PublishDelay   time.Duration `hcl:"publish_delay" env:"PUBLISH_DELAY" default:"5s"`
	RunOnStart     bool          `hcl:"run_on_start" env:"RUN_ON_START"`

	OpenAIKey    string `hcl:"openai_key" env:"OPENAI_KEY"`
	OpenAIPrompt string `hcl:"openai_prompt" env:"OPENAI_PROMPT" default:"Summarize the bill above in plain English in at most two sentences."`

	TelegramBotToken string `hcl:"telegram_bot_token" env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `hcl:"telegram_chat_id" env:"TELEGRAM_CHAT_ID"`

	MetricsAddr string `hcl:"metrics_addr" env:"METRICS_ADDR"`
}

var (
	cfg  Config
	once sync.Once
)

// Get loads the config once per process. Secrets are not required here;
// each source checks its own so a missing one only disables that source.
func Get() Config {
	once.Do(func() {
		// .env is optional, the process environment wins
		_ = godotenv.Load()

		loader := aconfig.LoaderFor(&cfg, aconfig.Config{
			SkipFlags:          true,
			AllowUnknownEnvs:   true,
			AllowUnknownFields: true,
			Files:              []string{"./config.hcl", "./config.local.hcl"},
			FileDecoders: map[string]aconfig.FileDecoder{
				".hcl": aconfighcl.New(),
			},
		})

		if err := loader.Load(); err != nil {
			log.Printf("[ERROR] failed to load config: %v", err)
		}
	})

	return cfg
}

func (c Config) IsDev() bool {
	return strings.EqualFold(c.Environment, "dev")
}

// CongressSecrets reports every missing secret the congress source needs.
func (c Config) CongressSecrets() error {
	return missing("congress", map[string]string{
		"CONGRESS_API_KEY":                  c.CongressAPIKey,
		"CONGRESS_TRACKER_BLUESKY_USERNAME": c.CongressBlueskyHandle,
		"CONGRESS_TRACKER_BLUESKY_PASSWORD": c.CongressBlueskyPass,
	})
}

// WorldNewsSecrets reports every missing secret the worldnews source needs.
// Feed mode reads the public listing and needs no reddit credentials.
func (c Config) WorldNewsSecrets() error {
	required := map[string]string{
		"REDDIT_WORLDNEWS_BLUESKY_USERNAME": c.WorldNewsBlueskyHandle,
		"REDDIT_WORLDNEWS_BLUESKY_PASSWORD": c.WorldNewsBlueskyPass,
	}
	if c.RedditMode != "feed" {
		required["REDDIT_APP_ID"] = c.RedditAppID
		required["REDDIT_APP_SECRET"] = c.RedditAppSecret
		required["REDDIT_USERNAME"] = c.RedditUsername
		required["REDDIT_PASSWORD"] = c.RedditPassword
	}
	return missing("worldnews", required)
}

func missing(stage string, secrets map[string]string) error {
	var names []string
	for name, value := range secrets {
		if strings.TrimSpace(value) == "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return apperr.MissingSecrets(stage, names...)
}
