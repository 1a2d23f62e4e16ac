package checker

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-price-watcher/internal/domain"
)

// Drop describes a verified price decrease for one subscription.
type Drop struct {
	ChatID  int64
	Name    string // label, or URL when no label
	URL     string
	Old     float64
	New     float64
	Diff    float64 // Old - New, always > 0
	Percent float64 // Diff / Old * 100, 0 when Old == 0
}

// Decide applies the notification rule.
//
// Behavior:
//   - No previous price (first observation): no drop.
//   - price >= old: no drop, including equal prices.
//   - price < old: a Drop with the absolute and percentage difference.
//
// old is passed separately from sub so callers decide which snapshot of the
// last price the comparison uses (the one taken at cycle start).
func Decide(sub domain.Subscription, old *float64, price float64) (Drop, bool) {
	if old == nil || !(price < *old) {
		return Drop{}, false
	}
	diff := *old - price
	pct := 0.0
	if *old != 0 {
		pct = diff / *old * 100
	}
	return Drop{
		ChatID:  sub.ChatID,
		Name:    sub.DisplayName(),
		URL:     sub.URL,
		Old:     *old,
		New:     price,
		Diff:    diff,
		Percent: pct,
	}, true
}

// Message renders the chat notification text.
func (d Drop) Message() string {
	var b strings.Builder
	b.WriteString("📉 Price dropped!\n")
	b.WriteString(d.Name + "\n")
	fmt.Fprintf(&b, "Was: %.2f\n", d.Old)
	fmt.Fprintf(&b, "Now: %.2f\n", d.New)
	fmt.Fprintf(&b, "Drop: -%.2f (-%.1f%%)\n", d.Diff, d.Percent)
	b.WriteString("Link: " + d.URL)
	return b.String()
}
