package helpers

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/sender"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

// chatKey keeps messages for one chat on one sender worker.
func chatKey(c tele.Context) string {
	if chat := c.Chat(); chat != nil {
		return "chat:" + strconv.FormatInt(chat.ID, 10)
	}
	if user := c.Sender(); user != nil {
		return "user:" + strconv.FormatInt(user.ID, 10)
	}
	return ""
}

const (
	repliesKey  = "replies"
	keyboardKey = "kb"
)

// countReply records a reply accepted for delivery on the update context.
func countReply(c tele.Context, kb bool) {
	n, _ := c.Get(repliesKey).(int)
	c.Set(repliesKey, n+1)
	if kb {
		c.Set(keyboardKey, true)
	}
}

// Replies reports how many replies the current update queued and whether any
// of them carried a keyboard.
func Replies(c tele.Context) (int, bool) {
	n, _ := c.Get(repliesKey).(int)
	kb, _ := c.Get(keyboardKey).(bool)
	return n, kb
}

// sendAsync queues run on the chat's sender worker. A rejected job is
// reported to the caller and never sent out of band, which would let it
// overtake replies still queued for the chat.
func sendAsync(c tele.Context, action, endpoint string, kb bool, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		if err := run(); err != nil {
			return err
		}
		countReply(c, kb)
		return nil
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, chatKey(c), action, endpoint, run); err != nil {
		logger.Warn(ctx, "tg.sender", "queue.reject",
			slog.String("status", "fail"),
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return err
	}
	countReply(c, kb)
	return nil
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	kb := sendOpts != nil && sendOpts.ReplyMarkup != nil
	return sendAsync(c, "send.text", "sendMessage", kb, func() error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	})
}

// SendPhoto sends an image by URL with a caption and optional reply markup.
func SendPhoto(c tele.Context, url, caption string, markup *tele.ReplyMarkup) error {
	photo := &tele.Photo{File: tele.FromURL(url), Caption: caption}
	return sendAsync(c, "send.photo", "sendPhoto", markup != nil, func() error {
		if markup != nil {
			return c.Send(photo, markup)
		}
		return c.Send(photo)
	})
}

// Acknowledge answers a callback query so the client stops its spinner.
// It is a no-op for other updates.
func Acknowledge(c tele.Context) {
	if c.Callback() == nil {
		return
	}
	if err := c.Respond(); err != nil {
		logger.Debug(BuildContext(c), "tg.sender", "callback.ack.fail",
			slog.String("err", err.Error()),
		)
	}
}
