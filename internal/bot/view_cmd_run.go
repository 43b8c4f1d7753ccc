package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/brinet/internal/botkit"
	"github.com/kovalyov-valentin/brinet/internal/pipeline"
)

// Runner is a pipeline that can be triggered by hand.
type Runner interface {
	Source() string
	Running() bool
	Run(ctx context.Context) (pipeline.Report, error)
}

// RunDone receives the outcome of a triggered run.
type RunDone func(ctx context.Context, report pipeline.Report, err error)

// ViewCmdRun answers /run <source>. The run outlives the update, so it is
// started on parent and its outcome goes to done.
func ViewCmdRun(parent context.Context, done RunDone, runners ...Runner) botkit.ViewFunc {
	bySource := make(map[string]Runner, len(runners))
	for _, r := range runners {
		bySource[r.Source()] = r
	}

	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		args := botkit.Args(update.Message.CommandArguments())
		if len(args) == 0 {
			return replyText(bot, update, "Usage: /run <congress|worldnews>")
		}

		runner, ok := bySource[args[0]]
		if !ok {
			return replyText(bot, update, "Source "+args[0]+" is not enabled")
		}
		if runner.Running() {
			return replyText(bot, update, "A "+args[0]+" run is already in flight")
		}

		go func() {
			report, err := runner.Run(parent)
			if errors.Is(err, pipeline.ErrRunInFlight) {
				return
			}
			if done != nil {
				done(parent, report, err)
			}
		}()

		return replyText(bot, update, "Started "+args[0]+" run")
	}
}
