package telegram

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"price-alert-bot/internal/commands"
	"price-alert-bot/internal/metrics"
	"price-alert-bot/internal/notify"
	"price-alert-bot/lib/translation"
)

const statusSeparator = "\n\n» "

// Handler dispatches chat commands and ack/unack button presses.
type Handler struct {
	bot      *Bot
	commands *commands.Commands
	// allowed is the chat allow-list; empty allows every chat.
	allowed map[int64]bool
	metrics *metrics.Metrics
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewHandler creates a handler. timeout bounds the work done for one update.
func NewHandler(b *Bot, cmds *commands.Commands, allowed map[int64]bool, m *metrics.Metrics, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{bot: b, commands: cmds, allowed: allowed, metrics: m, timeout: timeout}
}

func (h *Handler) isAllowed(chatID int64) bool {
	return len(h.allowed) == 0 || h.allowed[chatID]
}

// Run handles updates until ctx is done or the channel closes, then waits for
// in-flight updates.
func (h *Handler) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer h.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				h.HandleUpdate(ctx, u)
			}()
		}
	}
}

// HandleUpdate processes one Telegram update.
func (h *Handler) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	switch {
	case u.CallbackQuery != nil:
		h.HandleCallbackQuery(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.IsCommand():
		h.handleCommand(ctx, u.Message)
	default:
		log.Debug("Received non-message or non-command")
	}
}

func (h *Handler) handleCommand(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	chatName := m.Chat.Title
	if chatName == "" {
		chatName = fmt.Sprintf("%s-%d", "PrivateChat", chatID)
	}
	h.metrics.Message(chatID, chatName)

	command := strings.ToLower(m.Command())
	log.WithFields(log.Fields{"chat_id": chatID, "command": command}).Debug("received command")

	var reply commands.Reply
	if command != "id" && !h.isAllowed(chatID) {
		reply.Text = h.commands.NotAllowed(chatID)
	} else {
		reply = h.dispatch(ctx, chatID, command, m.CommandArguments())
	}

	var err error
	if reply.Photo != nil {
		err = h.bot.SendPhoto(chatID, m.MessageID, reply.Photo, reply.Caption)
	} else {
		err = h.bot.SendMessage(Message{ChatID: chatID, MessageID: m.MessageID, Text: reply.Text})
	}
	if err != nil {
		log.Errorf("Failed to send message: %v", err)
		return
	}
	h.metrics.CommandProcessed()
}

func (h *Handler) dispatch(ctx context.Context, chatID int64, command, args string) commands.Reply {
	c := h.commands
	switch command {
	case "start":
		return commands.Reply{Text: c.Start()}
	case "help":
		return commands.Reply{Text: c.Help()}
	case "id":
		return commands.Reply{Text: c.ID(chatID)}
	case "ping":
		return commands.Reply{Text: c.Ping()}
	case "price", "p":
		return commands.Reply{Text: c.Price(ctx, args)}
	case "find", "f":
		return commands.Reply{Text: c.Find(ctx, args)}
	case "chart", "c":
		return c.Chart(ctx, args)
	case "add":
		return commands.Reply{Text: c.Add(ctx, chatID, args)}
	case "list":
		return commands.Reply{Text: c.List(ctx, chatID)}
	case "remove", "rm":
		return commands.Reply{Text: c.Remove(ctx, chatID, args)}
	case "removeall":
		return commands.Reply{Text: c.RemoveAll(ctx, chatID)}
	case "ack":
		return commands.Reply{Text: c.Ack(ctx, chatID, args)}
	case "unack":
		return commands.Reply{Text: c.Unack(ctx, chatID, args)}
	}
	return commands.Reply{Text: c.Unknown(command)}
}

// HandleCallbackQuery applies an ack/unack button press and marks the alert
// message with the new state.
func (h *Handler) HandleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	action, ruleID, ok := notify.ParseCallback(q.Data)
	if !ok || q.Message == nil || q.Message.Chat == nil {
		h.answer(q.ID, translation.Translate("Unknown action. Please try again."))
		return
	}
	chatID := q.Message.Chat.ID
	if !h.isAllowed(chatID) {
		h.answer(q.ID, translation.Translate("This chat is not allowed to use the bot."))
		return
	}

	var (
		text   string
		status string
	)
	switch action {
	case notify.ActionAck:
		text, ok = h.commands.AckByID(ctx, chatID, ruleID)
		status = translation.Translate("✅ Acknowledged")
	case notify.ActionUnack:
		text, ok = h.commands.UnackByID(ctx, chatID, ruleID)
		status = translation.Translate("🔁 Re-armed")
	}

	if !ok {
		h.answer(q.ID, translation.Translate("Could not update the alert."))
		if err := h.bot.SendMessage(Message{ChatID: chatID, Text: text}); err != nil {
			log.Error(err)
		}
		return
	}
	h.answer(q.ID, status)

	base := q.Message.Text
	if i := strings.Index(base, statusSeparator); i >= 0 {
		base = base[:i]
	}
	markup := AckKeyboard(&notify.AckControl{RuleID: ruleID})
	if err := h.bot.editMessage(chatID, q.Message.MessageID, base+statusSeparator+status, &markup); err != nil {
		log.WithError(err).Debug("could not mark alert message")
	}
}

func (h *Handler) answer(callbackID, text string) {
	if err := h.bot.answerCallback(callbackID, text); err != nil {
		log.Error(err)
	}
}
