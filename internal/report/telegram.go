// Package report sends run summaries to an operator chat.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/kovalyov-valentin/brinet/internal/botkit/markup"
	"github.com/kovalyov-valentin/brinet/internal/pipeline"
	"github.com/kovalyov-valentin/brinet/internal/textutil"
)

// Escaping can double the length, so chunks stay well under the 4096
// character message limit.
const chunkGraphemes = 2000

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Reporter posts one MarkdownV2 summary per pipeline run.
type Reporter struct {
	sender Sender
	chatID int64
	log    *logrus.Entry
}

func New(sender Sender, chatID int64, log *logrus.Entry) *Reporter {
	return &Reporter{
		sender: sender,
		chatID: chatID,
		log:    log,
	}
}

// Report sends the summary of a finished run. runErr is the batch-level
// error the run returned, if any.
func (r *Reporter) Report(ctx context.Context, report pipeline.Report, runErr error) error {
	chunks := textutil.Chunk(FormatReport(report, runErr), chunkGraphemes)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		text := markup.EscapeForMarkdown(chunk)
		if i == 0 {
			text = markup.Bold("brinet "+report.Source+" run") + "\n\n" + text
		}

		msg := tgbotapi.NewMessage(r.chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdownV2
		msg.DisableWebPagePreview = true

		if _, err := r.sender.Send(msg); err != nil {
			return fmt.Errorf("send report part %d of %d: %w", i+1, len(chunks), err)
		}
	}

	r.log.WithFields(logrus.Fields{"source": report.Source, "parts": len(chunks)}).Debug("run report sent")
	return nil
}

// FormatReport renders the plain-text body of a run summary.
func FormatReport(report pipeline.Report, runErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Started: %s\n", report.StartedAt.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "Took: %s\n", report.Duration.Round(time.Second))
	fmt.Fprintf(&b, "Fetched: %d, skipped: %d, published: %d\n", report.Fetched, report.Skipped, report.Published)
	if runErr != nil {
		fmt.Fprintf(&b, "Run error: %v\n", runErr)
	}

	if len(report.Failures) > 0 {
		fmt.Fprintf(&b, "\nFailures (%d):\n", len(report.Failures))
		for _, f := range report.Failures {
			key := f.Key
			if key == "" {
				key = "-"
			}
			fmt.Fprintf(&b, "- %s [%s] %s: %s\n", key, f.Stage, f.Kind, f.Message)
		}
	}
	return b.String()
}
