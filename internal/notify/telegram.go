// Package notify sends failure alerts to a Telegram chat.
//
// It consumes job.failed events from the bus and also implements the logx
// Notifier contract, so high-severity log lines can be mirrored to the same
// chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"vesper/internal/eventbus"
	"vesper/internal/scheduler"
	logx "vesper/pkg/logx"
)

// Config configures the Telegram notifier.
type Config struct {
	Token       string
	ChatID      int64
	PollTimeout time.Duration
}

type Telegram struct {
	log  logx.Logger
	bot  *tele.Bot
	chat *tele.Chat

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTelegram(cfg Config, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{log: log, bot: b, chat: &tele.Chat{ID: cfg.ChatID}}, nil
}

// Notify implements logx.Notifier.
func (t *Telegram) Notify(ctx context.Context, msg string) error {
	_, err := t.bot.Send(t.chat, msg, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}

// Start watches the bus for failed runs until Stop.
func (t *Telegram) Start(bus eventbus.Bus) {
	if bus == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	events, unsub := bus.Subscribe(64)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if e.Type != scheduler.EventFailed {
					continue
				}
				ev, ok := e.Data.(scheduler.JobEvent)
				if !ok {
					continue
				}
				msg := fmt.Sprintf("job %q failed\ncommand: %s\nerror: %s",
					ev.JobID, ev.Command, ev.Error)
				if err := t.Notify(ctx, msg); err != nil {
					t.log.Warn("failure alert not delivered",
						logx.String("job", ev.JobID), logx.Err(err))
				}
			}
		}
	}()
}

func (t *Telegram) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}
