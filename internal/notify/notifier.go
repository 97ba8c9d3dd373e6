package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fxbot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
	Confirm(ctx context.Context, prompt string, timeout time.Duration) bool
}

// Controller: то, чем управляют команды /status /pause /resume.
type Controller interface {
	StatusText() string
	Pause(name string) error
	Resume(name string) error
}

// Telegram: уведомления, подтверждение входа кнопками и три команды.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	mu       sync.Mutex
	ctrl     Controller
	pendings map[string]*pending
	cancel   context.CancelFunc
}

type pending struct {
	ch     chan bool
	msgID  int
	prompt string
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{
		bot:      b,
		chatID:   chatID,
		pendings: make(map[string]*pending),
	}, nil
}

func (t *Telegram) SetController(c Controller) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ctrl = c
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Warn("[TG] send: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// parseCallback разбирает CONF::token / REJ::token.
func parseCallback(data string) (accepted bool, token string, ok bool) {
	verb, token, found := strings.Cut(data, "::")
	if !found || token == "" {
		return false, "", false
	}
	switch verb {
	case "CONF":
		return true, token, true
	case "REJ":
		return false, token, true
	}
	return false, "", false
}

// HandleCallback вызывается из Start() для callback_query.
func (t *Telegram) HandleCallback(cb *tgbot.CallbackQuery) {
	if t == nil || t.bot == nil || cb == nil {
		return
	}
	// ответ Telegram для остановки спиннера
	_, _ = t.bot.Request(tgbot.NewCallback(cb.ID, ""))

	accepted, token, ok := parseCallback(cb.Data)
	if !ok {
		return
	}
	p := t.takePending(token)
	if p == nil {
		return
	}
	p.ch <- accepted

	status, emoji := "Отклонено", "❌"
	if accepted {
		status, emoji = "Подтверждено", "✅"
	}
	t.finish(p, fmt.Sprintf("%s %s", emoji, status))
}

func (t *Telegram) takePending(token string) *pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pendings[token]
	if !ok {
		return nil
	}
	delete(t.pendings, token)
	return p
}

func (t *Telegram) finish(p *pending, suffix string) {
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	_, _ = t.bot.Request(tgbot.NewEditMessageReplyMarkup(t.chatID, p.msgID, rm))
	_, _ = t.bot.Request(tgbot.NewEditMessageText(t.chatID, p.msgID, p.prompt+"\n\n"+suffix))
}

// Confirm: сообщение с кнопками и ожидание callback; таймаут = отказ.
func (t *Telegram) Confirm(ctx context.Context, prompt string, timeout time.Duration) bool {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return true
	}

	token := uuid.NewString()
	p := &pending{ch: make(chan bool, 1), prompt: prompt}

	kb := tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(
		tgbot.NewInlineKeyboardButtonData("✅ Войти", "CONF::"+token),
		tgbot.NewInlineKeyboardButtonData("❌ Пропустить", "REJ::"+token),
	))
	msg := tgbot.NewMessage(t.chatID, prompt)
	msg.ReplyMarkup = kb

	sent, err := t.bot.Send(msg)
	if err != nil {
		logger.Warn("[TG] confirm send: %v", err)
		return false
	}
	p.msgID = sent.MessageID

	t.mu.Lock()
	t.pendings[token] = p
	t.mu.Unlock()

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	select {
	case ok := <-p.ch:
		return ok
	case <-tmr.C:
		if t.takePending(token) != nil {
			t.finish(p, "⏳ Таймаут")
		}
		return false
	case <-ctx.Done():
		if t.takePending(token) != nil {
			t.finish(p, "⛔️ Отменено")
		}
		return false
	}
}

// handleCommand returns the reply for /status, /pause <bot>, /resume <bot>.
func (t *Telegram) handleCommand(cmd, args string) string {
	t.mu.Lock()
	ctrl := t.ctrl
	t.mu.Unlock()
	if ctrl == nil {
		return "❗️ Боты ещё не запущены"
	}
	name := strings.TrimSpace(args)
	switch cmd {
	case "status":
		return ctrl.StatusText()
	case "pause":
		if name == "" {
			return "usage: /pause <bot>"
		}
		if err := ctrl.Pause(name); err != nil {
			return "❗️ " + err.Error()
		}
		return "⏸ " + name + " на паузе"
	case "resume":
		if name == "" {
			return "usage: /resume <bot>"
		}
		if err := ctrl.Resume(name); err != nil {
			return "❗️ " + err.Error()
		}
		return "▶️ " + name + " снова торгует"
	}
	return ""
}

// Start: long-polling для messages + callback_query.
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil || t.bot == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				if upd.CallbackQuery != nil {
					t.HandleCallback(upd.CallbackQuery)
				}
				m := upd.Message
				if m != nil && m.Chat != nil && m.Chat.ID == t.chatID && m.IsCommand() {
					if reply := t.handleCommand(m.Command(), m.CommandArguments()); reply != "" {
						t.Send(reply)
					}
				}
			}
		}
	}()
	return nil
}

func (t *Telegram) Stop() {
	if t == nil || t.bot == nil {
		return
	}
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()
	t.bot.StopReceivingUpdates()
}

// Stdout: заглушка, всё логирует и всегда подтверждает.
type Stdout struct{}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { logger.Info("[NOTIFY] %s", msg) }
func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }
func (s *Stdout) Confirm(_ context.Context, prompt string, _ time.Duration) bool {
	logger.Info("[NOTIFY] CONFIRM (auto-yes): %s", prompt)
	return true
}
