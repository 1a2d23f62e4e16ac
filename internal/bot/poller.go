package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// API is the subset of *tgbotapi.BotAPI used by Poller.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Poller long-polls Telegram for messages and answers them with Commands.
type Poller struct {
	api      API
	commands *Commands
	timeout  time.Duration
	log      zerolog.Logger
}

// NewPoller returns a Poller. timeout is the long-poll timeout.
func NewPoller(api API, commands *Commands, timeout time.Duration) *Poller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{
		api:      api,
		commands: commands,
		timeout:  timeout,
		log:      log.With().Str("component", "bot").Logger(),
	}
}

// Run handles updates until ctx is done or the update channel closes.
// Messages are handled one at a time in arrival order.
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(p.timeout / time.Second)
	updates := p.api.GetUpdatesChan(cfg)
	p.log.Info().Dur("poll_timeout", p.timeout).Msg("bot polling started")

	for {
		select {
		case <-ctx.Done():
			p.api.StopReceivingUpdates()
			p.log.Info().Msg("bot polling stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			p.handle(ctx, upd)
		}
	}
}

func (p *Poller) handle(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	reply := p.commands.Handle(ctx, msg.Chat.ID, msg.Text)
	if reply == "" {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	out.DisableWebPagePreview = true
	if _, err := p.api.Send(out); err != nil {
		p.log.Warn().Err(err).Int64("chat_id", msg.Chat.ID).Msg("reply not delivered")
	}
}
