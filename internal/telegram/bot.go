// Package telegram drives calculator sessions from a Telegram inline
// keyboard.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"go-chi-calculator/internal/calculator"
	"go-chi-calculator/internal/session"
)

var (
	ErrClosed         = errors.New("bot has closed")
	ErrSessionExpired = errors.New("session has expired")
	ErrAlreadyStarted = errors.New("bot already started")
	ErrUnsupported    = errors.New("unsupported key")
)

// historyLines is how many entries /history lists.
const historyLines = 10

func button(label, key string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(label, key)
}

var botKeyboard = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		button("sin", calculator.FuncSin),
		button("cos", calculator.FuncCos),
		button("tan", calculator.FuncTan),
		button("DRG", calculator.KeyAngle),
	),
	tgbotapi.NewInlineKeyboardRow(
		button("√", calculator.FuncSqrt),
		button("log", calculator.FuncLog),
		button("ln", calculator.FuncLn),
		button("n!", calculator.FuncFactorial),
	),
	tgbotapi.NewInlineKeyboardRow(
		button("AC", calculator.KeyClear),
		button("CE", calculator.KeyClearEntry),
		button("%", calculator.FuncPercent),
		button("÷", calculator.OpDivide),
	),
	tgbotapi.NewInlineKeyboardRow(
		button("7", "7"),
		button("8", "8"),
		button("9", "9"),
		button("×", calculator.OpMultiply),
	),
	tgbotapi.NewInlineKeyboardRow(
		button("4", "4"),
		button("5", "5"),
		button("6", "6"),
		button("-", calculator.OpSubtract),
	),
	tgbotapi.NewInlineKeyboardRow(
		button("1", "1"),
		button("2", "2"),
		button("3", "3"),
		button("+", calculator.OpAdd),
	),
	tgbotapi.NewInlineKeyboardRow(
		button("(", "("),
		button(")", ")"),
		button("xʸ", calculator.OpPower),
		button("±", calculator.KeySign),
	),
	tgbotapi.NewInlineKeyboardRow(
		button("0", "0"),
		button(".", calculator.KeyDecimal),
		button("=", calculator.KeyEquals),
	),
)

// API is the part of the Telegram client the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Config holds polling settings.
type Config struct {
	Offset  int
	Timeout int
	// SessionTTL is only used in the welcome text.
	SessionTTL time.Duration
}

type Bot struct {
	api        API
	registry   *session.Registry
	config     Config
	welcome    string
	help       string
	isStarted  atomic.Bool
	inShutdown atomic.Bool
	isDone     chan struct{}
	logger     *zap.Logger
}

// Connect logs in with token and returns a bot serving sessions from
// registry.
func Connect(token string, cfg Config, registry *session.Registry, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return New(api, cfg, registry, logger), nil
}

func New(api API, cfg Config, registry *session.Registry, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bot{
		api:      api,
		registry: registry,
		config:   cfg,
		logger:   logger,
		isDone:   make(chan struct{}),
		welcome: fmt.Sprintf(
			"%s%s %s of inactivity.",
			"Welcome! Type /open to get started.\n",
			"Note: the session expires after",
			cfg.SessionTTL,
		),
		help: strings.Join([]string{
			"Help:",
			"/start - welcome message.",
			"/open - open new session.",
			"/history - list recent calculations.",
			"/clearhistory - forget all calculations.",
			"/help - send this message.",
		}, "\n"),
	}
}

// Run polls for updates until the update channel closes.
func (b *Bot) Run(ctx context.Context) error {
	if b.isStarted.Swap(true) {
		return ErrAlreadyStarted
	}
	defer close(b.isDone)

	updateConfig := tgbotapi.NewUpdate(b.config.Offset)
	updateConfig.Timeout = b.config.Timeout
	updates := b.api.GetUpdatesChan(updateConfig)

	for update := range updates {
		if b.inShutdown.Load() && b.registry.IsEmpty() {
			continue
		}

		if update.CallbackQuery != nil {
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Warn("callback failed", zap.Error(err))
				continue
			}
		}

		if update.Message == nil {
			continue
		}

		if err := b.handleCommand(update.Message); err != nil {
			b.logger.Warn("failed to send message", zap.Error(err))
		}
	}

	return ErrClosed
}

func sessionKey(chatID, userID int64) string {
	return fmt.Sprintf("%d_%d", chatID, userID)
}

func render(v calculator.View) string {
	if v.Calculation == "" {
		return v.Display
	}
	return v.Calculation + "\n" + v.Display
}

func (b *Bot) createMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return nil
}

func (b *Bot) createKeyboard(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = botKeyboard

	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) updateKeyboard(callback *tgbotapi.CallbackQuery, text string) error {
	if text == callback.Message.Text {
		return nil
	}

	edit := tgbotapi.NewEditMessageText(
		callback.Message.Chat.ID,
		callback.Message.MessageID,
		text,
	)
	edit.ReplyMarkup = &botKeyboard

	_, err := b.api.Send(edit)
	return err
}

// open returns the caller's live session or a fresh one. opened reports
// whether it was just created.
func (b *Bot) open(key string) (entry *session.Entry, opened bool, err error) {
	if entry, err := b.registry.Get(key); err == nil {
		return entry, false, nil
	}

	entry, err = b.registry.Create(key)
	if errors.Is(err, session.ErrExists) {
		// expired but not swept yet
		_ = b.registry.Delete(key)
		entry, err = b.registry.Create(key)
	}
	return entry, err == nil, err
}

func (b *Bot) handleCommand(command *tgbotapi.Message) error {
	chatID := command.Chat.ID
	key := sessionKey(chatID, command.From.ID)

	switch command.Text {
	case "/start":
		return b.createMessage(chatID, b.welcome)
	case "/help":
		return b.createMessage(chatID, b.help)
	case "/open":
		entry, opened, err := b.open(key)
		if errors.Is(err, session.ErrLimited) {
			return b.createMessage(chatID, "Too many new sessions, try again in a moment.")
		}
		if err != nil {
			return err
		}
		if !opened {
			return b.createMessage(chatID, "Your session is not expired!")
		}

		var view calculator.View
		_ = entry.Do(func(s *calculator.Session) error {
			view = s.View()
			return nil
		})
		b.logger.Info("telegram session opened", zap.String("session_id", key))
		return b.createKeyboard(chatID, render(view))
	case "/history":
		entry, err := b.registry.Get(key)
		if err != nil {
			return b.createMessage(chatID, "No open session. Try /open")
		}
		var history []calculator.HistoryEntry
		if err := entry.Do(func(s *calculator.Session) error {
			history = s.History()
			return nil
		}); err != nil {
			return b.createMessage(chatID, "Busy, try again.")
		}
		return b.createMessage(chatID, formatHistory(history))
	case "/clearhistory":
		entry, err := b.registry.Get(key)
		if err != nil {
			return b.createMessage(chatID, "No open session. Try /open")
		}
		if err := entry.Do(func(s *calculator.Session) error {
			return s.ClearHistory()
		}); err != nil {
			return b.createMessage(chatID, "Busy, try again.")
		}
		return b.createMessage(chatID, "History cleared.")
	default:
		return b.createMessage(chatID, "Unknown command. Try /help")
	}
}

func formatHistory(history []calculator.HistoryEntry) string {
	if len(history) == 0 {
		return "No calculations yet."
	}
	if len(history) > historyLines {
		history = history[:historyLines]
	}

	lines := make([]string, len(history))
	for i, e := range history {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	key := sessionKey(callback.Message.Chat.ID, callback.From.ID)

	entry, err := b.registry.Get(key)
	if err != nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
			return err
		}
		if err := b.updateKeyboard(callback, "Your session has expired, please /open a new one."); err != nil {
			return err
		}
		return ErrSessionExpired
	}

	var view calculator.View
	err = entry.Do(func(s *calculator.Session) error {
		err := s.Press(ctx, callback.Data)
		view = s.View()
		return err
	})

	notice := ""
	switch {
	case errors.Is(err, calculator.ErrBusy):
		notice = "Busy, please wait."
	case calculator.IsKind(err, calculator.InvalidOperand):
		notice = "Unsupported key."
	}
	if _, reqErr := b.api.Request(tgbotapi.NewCallback(callback.ID, notice)); reqErr != nil {
		return reqErr
	}
	if calculator.IsKind(err, calculator.InvalidOperand) {
		return ErrUnsupported
	}
	if notice != "" {
		return nil
	}

	return b.updateKeyboard(callback, render(view))
}

// Shutdown stops polling once every session has expired or ctx is done.
func (b *Bot) Shutdown(ctx context.Context) error {
	b.inShutdown.Store(true)
	err := b.registry.Shutdown(ctx)
	b.api.StopReceivingUpdates()
	if !b.isStarted.Load() {
		return err
	}

	select {
	case <-b.isDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops every session and stops polling.
func (b *Bot) Close() error {
	b.inShutdown.Store(true)
	err := b.registry.Close()
	b.api.StopReceivingUpdates()
	if b.isStarted.Load() {
		<-b.isDone
	}

	if errors.Is(err, session.ErrClosed) {
		return ErrClosed
	}
	return err
}
