package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramSink sends the timelapse as a video through the Telegram bot API.
// Format: tgram://BOT_TOKEN/CHAT_ID[/CHAT_ID...]; a chat may be "@channel".
type telegramSink struct {
	token       string
	chats       []string
	apiEndpoint string
}

func parseTelegram(raw string) (*telegramSink, error) {
	_, rest, _ := strings.Cut(raw, "://")
	rest, _, _ = strings.Cut(rest, "?")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		return nil, errors.New("notification target tgram://***: expected tgram://BOT_TOKEN/CHAT_ID")
	}

	s := &telegramSink{
		token:       parts[0],
		apiEndpoint: tgbotapi.APIEndpoint,
	}
	for _, chat := range parts[1:] {
		if chat == "" {
			continue
		}
		if !strings.HasPrefix(chat, "@") {
			if _, err := strconv.ParseInt(chat, 10, 64); err != nil {
				return nil, fmt.Errorf("notification target tgram://***: invalid chat id %q", chat)
			}
		}
		s.chats = append(s.chats, chat)
	}
	if len(s.chats) == 0 {
		return nil, errors.New("notification target tgram://***: no chat id")
	}
	return s, nil
}

func (s *telegramSink) Name() string {
	return "tgram://***/" + strings.Join(s.chats, "/")
}

func (s *telegramSink) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// The client checks the token with getMe on creation, so it is built per
	// send rather than at config time.
	bot, err := tgbotapi.NewBotAPIWithClient(s.token, s.apiEndpoint, &http.Client{Timeout: 5 * time.Minute})
	if err != nil {
		return fmt.Errorf("telegram init error: %w", err)
	}

	var errs []error
	for _, chat := range s.chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := bot.Send(s.chattable(chat, msg)); err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", chat, err))
		}
	}
	return errors.Join(errs...)
}

func (s *telegramSink) chattable(chat string, msg Message) tgbotapi.Chattable {
	caption := msg.Title
	if msg.Body != "" {
		caption += "\n" + msg.Body
	}

	chatID, _ := strconv.ParseInt(chat, 10, 64)
	if msg.Attachment == "" {
		m := tgbotapi.NewMessage(chatID, caption)
		if strings.HasPrefix(chat, "@") {
			m.ChannelUsername = chat
		}
		return m
	}

	v := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(msg.Attachment))
	v.Caption = caption
	v.SupportsStreaming = true
	if strings.HasPrefix(chat, "@") {
		v.ChannelUsername = chat
	}
	return v
}
