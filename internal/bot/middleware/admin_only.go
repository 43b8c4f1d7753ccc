package middleware

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/brinet/internal/botkit"
)

const deniedReply = "You are not allowed to run this command"

// AdminOnly lets the update through only when its sender administers chatID.
func AdminOnly(chatID int64, next botkit.ViewFunc) botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		allowed, err := isAdmin(bot, chatID, update.Message.From)
		if err != nil {
			return fmt.Errorf("list admins of chat %d: %w", chatID, err)
		}
		if allowed {
			return next(ctx, bot, update)
		}

		_, err = bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, deniedReply))
		return err
	}
}

func isAdmin(bot *tgbotapi.BotAPI, chatID int64, user *tgbotapi.User) (bool, error) {
	if user == nil {
		return false, nil
	}

	admins, err := bot.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return false, err
	}

	return lo.ContainsBy(admins, func(m tgbotapi.ChatMember) bool {
		return m.User != nil && m.User.ID == user.ID
	}), nil
}
