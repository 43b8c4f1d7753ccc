package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/brinet/internal/botkit"
	"github.com/kovalyov-valentin/brinet/internal/botkit/markup"
	"github.com/kovalyov-valentin/brinet/internal/model"
)

const (
	defaultHistory = 5
	maxHistory     = 20
)

type RecordLister interface {
	Latest(ctx context.Context, source string, limit int) ([]model.PublishedRecord, error)
}

// ViewCmdHistory answers /history <source> [n] with the newest dedup records.
func ViewCmdHistory(lister RecordLister) botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		args := botkit.Args(update.Message.CommandArguments())
		if len(args) == 0 || !knownSource(args[0]) {
			return replyText(bot, update, "Usage: /history <congress|worldnews> [n]")
		}

		n, err := botkit.IntArg(args, 1, defaultHistory)
		if err != nil {
			return replyText(bot, update, err.Error())
		}
		n = min(n, maxHistory)

		records, err := lister.Latest(ctx, args[0], n)
		if err != nil {
			return err
		}

		var msgText string
		if len(records) == 0 {
			msgText = markup.EscapeForMarkdown("Nothing published from " + args[0] + " yet.")
		} else {
			msgText = fmt.Sprintf(
				"%s \\(%d\\):\n\n%s",
				markup.Bold("Latest from "+args[0]),
				len(records),
				strings.Join(lo.Map(records, func(r model.PublishedRecord, _ int) string {
					return formatRecord(r)
				}), "\n\n"),
			)
		}

		reply := tgbotapi.NewMessage(update.Message.Chat.ID, msgText)
		reply.ParseMode = tgbotapi.ModeMarkdownV2
		reply.DisableWebPagePreview = true

		if _, err := bot.Send(reply); err != nil {
			return err
		}
		return nil
	}
}

func formatRecord(r model.PublishedRecord) string {
	return fmt.Sprintf(
		"%s %s\n%s",
		markup.Code(r.NaturalKey),
		markup.EscapeForMarkdown(r.PublishedAt.UTC().Format("2006-01-02 15:04 UTC")),
		markup.EscapeForMarkdown(r.Permalink),
	)
}

func knownSource(s string) bool {
	return s == model.SourceCongress || s == model.SourceWorldNews
}

func replyText(bot *tgbotapi.BotAPI, update tgbotapi.Update, text string) error {
	_, err := bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, text))
	return err
}
