// Package bot implements the chat command surface: parsing user commands,
// calling the subscription service, and formatting replies. Poller connects
// it to Telegram via long polling.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-price-watcher/internal/domain"
	"github.com/tbourn/go-price-watcher/internal/services"
)

// Service is the subscription API used by the commands.
type Service interface {
	Subscribe(ctx context.Context, chatID int64, rawURL, label string) (*domain.Subscription, error)
	List(ctx context.Context, chatID int64) ([]domain.Subscription, error)
	Remove(ctx context.Context, chatID int64, id uint) error
	History(ctx context.Context, chatID int64, id uint, limit int) ([]domain.PriceObservation, error)
}

const helpText = `Hi! I watch prices on product pages and tell you when a price goes DOWN.

Commands:
/add <link> [name]
/add_sku <ozon|wb|site> <sku> (helps you open a search)
/list
/remove <id>
/price <id>`

const internalErrText = "Something went wrong, please try again later."

// Commands turns chat text into replies.
type Commands struct {
	svc          Service
	historyLimit int
	log          zerolog.Logger
}

// NewCommands returns a command handler backed by svc.
func NewCommands(svc Service) *Commands {
	return &Commands{
		svc:          svc,
		historyLimit: services.DefaultHistoryLimit,
		log:          log.With().Str("component", "bot").Logger(),
	}
}

// Handle executes one message and returns the reply. Plain text that is not
// a command yields an empty reply.
func (c *Commands) Handle(ctx context.Context, chatID int64, text string) string {
	cmd, args := parseCommand(text)
	switch cmd {
	case "":
		return ""
	case "start", "help":
		return helpText
	case "add":
		return c.add(ctx, chatID, args)
	case "add_sku":
		return c.addSKU(args)
	case "list":
		return c.list(ctx, chatID)
	case "remove":
		return c.remove(ctx, chatID, args)
	case "price":
		return c.price(ctx, chatID, args)
	default:
		return "Unknown command. Send /start for help."
	}
}

// parseCommand splits "/cmd@bot a b c" into ("cmd", ["a","b","c"]).
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

func (c *Commands) add(ctx context.Context, chatID int64, args []string) string {
	if len(args) < 1 {
		return "Example: /add https://... Lacoste jacket"
	}
	sub, err := c.svc.Subscribe(ctx, chatID, args[0], strings.Join(args[1:], " "))
	switch {
	case errors.Is(err, services.ErrInvalidURL):
		return "That does not look like a link. Example: /add https://... Lacoste jacket"
	case err != nil:
		c.log.Error().Err(err).Int64("chat_id", chatID).Msg("subscribe failed")
		return internalErrText
	}
	return fmt.Sprintf("✅ Added. ID = %d\nI will message you when the price goes down.", sub.ID)
}

func (c *Commands) addSKU(args []string) string {
	if len(args) < 2 {
		return "Example: /add_sku ozon 123456\nOr: /add_sku wb 123456"
	}
	search, err := services.SearchURL(args[0], strings.Join(args[1:], " "))
	if err != nil {
		search = "(for clothing sites, copy the product link directly)"
	}
	return "OK. The most reliable way:\n" +
		"1) Open the search using the link below\n" +
		"2) Find the product\n" +
		"3) Open it and copy its link\n" +
		"4) Send me: /add <link> [name]\n\n" +
		"Search link: " + search
}

func (c *Commands) list(ctx context.Context, chatID int64) string {
	subs, err := c.svc.List(ctx, chatID)
	if err != nil {
		c.log.Error().Err(err).Int64("chat_id", chatID).Msg("list failed")
		return internalErrText
	}
	if len(subs) == 0 {
		return "Your list is empty. Add a product: /add <link>"
	}
	blocks := make([]string, 0, len(subs))
	for _, s := range subs {
		price, checked := "n/a", "n/a"
		if s.LastPrice != nil {
			price = fmt.Sprintf("%.2f", *s.LastPrice)
		}
		if s.LastCheckedAt != nil {
			checked = formatTime(*s.LastCheckedAt)
		}
		blocks = append(blocks, fmt.Sprintf("%d) %s\n   price: %s\n   checked: %s", s.ID, s.DisplayName(), price, checked))
	}
	return strings.Join(blocks, "\n\n")
}

func (c *Commands) remove(ctx context.Context, chatID int64, args []string) string {
	id, ok := parseID(args)
	if !ok {
		return "Example: /remove 3"
	}
	err := c.svc.Remove(ctx, chatID, id)
	switch {
	case errors.Is(err, services.ErrSubscriptionNotFound):
		return "No subscription with that ID."
	case err != nil:
		c.log.Error().Err(err).Int64("chat_id", chatID).Uint("subscription_id", id).Msg("remove failed")
		return internalErrText
	}
	return "✅ Removed."
}

func (c *Commands) price(ctx context.Context, chatID int64, args []string) string {
	id, ok := parseID(args)
	if !ok {
		return "Example: /price 3"
	}
	hist, err := c.svc.History(ctx, chatID, id, c.historyLimit)
	switch {
	case errors.Is(err, services.ErrSubscriptionNotFound):
		return "No subscription with that ID."
	case err != nil:
		c.log.Error().Err(err).Int64("chat_id", chatID).Uint("subscription_id", id).Msg("history failed")
		return internalErrText
	}
	if len(hist) == 0 {
		return "No history yet (the bot has not checked it yet)."
	}
	lines := make([]string, 0, len(hist)+1)
	lines = append(lines, "Recent prices:")
	for _, h := range hist {
		lines = append(lines, fmt.Sprintf("%.2f (%s)", h.Price, formatTime(h.ObservedAt)))
	}
	return strings.Join(lines, "\n")
}

func parseID(args []string) (uint, bool) {
	if len(args) < 1 {
		return 0, false
	}
	n, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
