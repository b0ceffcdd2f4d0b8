package telegram

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"webook-events-bot/internal/domain"
	"webook-events-bot/internal/infra/metrics"
)

// Sender отправляет сообщения через Bot API. Ошибки Bot API возвращаются
// вызывающему без изменений — диспетчер пишет их в журнал доставки.
type Sender struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var _ domain.Sender = (*Sender)(nil)

// NewSender создаёт адаптер канала доставки.
func NewSender(bot *tgbotapi.BotAPI, log zerolog.Logger) *Sender {
	return &Sender{bot: bot, log: log}
}

// SendText отправляет текстовое сообщение с inline-клавиатурой.
// Длинный текст разбивается по лимиту Telegram, клавиатура
// прикрепляется к последней части.
func (s *Sender) SendText(ctx context.Context, chatID int64, text string, grid [][]domain.Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parts := SplitMessage(text)
	markup := buildMarkup(grid)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		if markup != nil && i == len(parts)-1 {
			msg.ReplyMarkup = *markup
		}
		start := time.Now()
		_, err := s.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			return err
		}
	}
	return nil
}

// SendPhoto отправляет изображение по URL с подписью и inline-клавиатурой.
func (s *Sender) SendPhoto(ctx context.Context, chatID int64, imageURL, caption string, grid [][]domain.Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(imageURL))
	photo.Caption = TruncateCaption(caption)
	photo.ParseMode = tgbotapi.ModeHTML
	if markup := buildMarkup(grid); markup != nil {
		photo.ReplyMarkup = *markup
	}
	start := time.Now()
	_, err := s.bot.Send(photo)
	metrics.ObserveNetworkRequest("telegram_bot", "send_photo", strconv.FormatInt(chatID, 10), start, err)
	return err
}

// buildMarkup переводит сетку кнопок в разметку Bot API, сохраняя
// порядок строк и колонок.
func buildMarkup(grid [][]domain.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(grid) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(grid))
	for _, row := range grid {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.CallbackData))
			}
		}
		rows = append(rows, buttons)
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
