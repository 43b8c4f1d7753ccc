package botkit

import (
	"context"
	"fmt"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const errorReply = "internal error"

// ViewFunc handles one command. Views that start long work must hand it to
// a context of their own; ctx ends with the bot.
type ViewFunc func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error

// Bot routes commands to views, one update at a time.
type Bot struct {
	api   *tgbotapi.BotAPI
	views map[string]ViewFunc
	log   *logrus.Entry
}

func New(api *tgbotapi.BotAPI, log *logrus.Entry) *Bot {
	return &Bot{
		api:   api,
		views: make(map[string]ViewFunc),
		log:   log,
	}
}

// Handle registers view for /cmd, replacing any earlier one.
func (b *Bot) Handle(cmd string, view ViewFunc) {
	b.views[cmd] = view
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}

	view, ok := b.views[msg.Command()]
	if !ok {
		return
	}

	if err := call(ctx, b.api, view, update); err != nil {
		b.log.WithFields(logrus.Fields{"cmd": msg.Command(), "chat": msg.Chat.ID}).WithError(err).Error("view failed")

		if _, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, errorReply)); err != nil {
			b.log.WithError(err).Error("failed to send error reply")
		}
	}
}

// call runs view and turns a panic into an error.
func call(ctx context.Context, api *tgbotapi.BotAPI, view ViewFunc, update tgbotapi.Update) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return view(ctx, api, update)
}
