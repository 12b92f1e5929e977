package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/luckfunc/floorbot/internal/models"
)

const (
	QuoteNotFoundText   = "Collection not found or API error"
	FetchErrorText      = "❌ Error fetching floor price. Please try again later."
	NoTrackedText       = "No collections are being tracked in this channel"
	notAvailable        = "N/A"
	trackedListHeadline = "**Tracked Collections:**"
)

var hundred = decimal.NewFromInt(100)

// FormatQuote renders a quote for chat. A nil quote yields QuoteNotFoundText.
func FormatQuote(quote *models.PriceQuote) string {
	if quote == nil {
		return QuoteNotFoundText
	}

	floor := notAvailable
	if quote.FloorPrice.Valid {
		floor = fmt.Sprintf("%s %s", quote.FloorPrice.Decimal.StringFixed(3), quote.Currency)
	}
	volume := notAvailable
	if quote.Volume24h.Valid {
		volume = fmt.Sprintf("%s %s", quote.Volume24h.Decimal.StringFixed(2), models.Currency)
	}
	change := notAvailable
	if quote.Change24h.Valid {
		change = quote.Change24h.Decimal.Mul(hundred).StringFixed(2) + "%"
	}

	return fmt.Sprintf("**%s**\n"+
		"Floor Price: %s\n"+
		"24h Volume: %s\n"+
		"24h Change: %s",
		quote.Collection, floor, volume, change)
}

// FormatAlert renders a threshold crossing. The glyph and sign follow the
// signed change.
func FormatAlert(alert models.PriceAlert) string {
	emoji := "📉"
	changeText := alert.ChangePct.StringFixed(2) + "%"
	if alert.ChangePct.IsPositive() {
		emoji = "📈"
		changeText = "+" + changeText
	}

	return fmt.Sprintf("%s **%s** floor price changed!\n"+
		"Old: %s %s\n"+
		"New: %s %s\n"+
		"Change: %s",
		emoji, alert.Collection,
		alert.OldPrice.StringFixed(3), models.Currency,
		alert.NewPrice.StringFixed(3), models.Currency,
		changeText)
}

// FormatTrackedList renders a subscriber's watch records sorted by collection.
func FormatTrackedList(tracked map[string]models.WatchRecord) string {
	if len(tracked) == 0 {
		return NoTrackedText
	}

	var b strings.Builder
	b.WriteString(trackedListHeadline + "\n")
	for _, collection := range sortedCollections(tracked) {
		record := tracked[collection]
		b.WriteString("• " + collection)
		if record.Threshold.Valid {
			fmt.Fprintf(&b, " (%s%% threshold)", record.Threshold.Decimal.String())
		}
		if record.LastPrice.Valid {
			fmt.Fprintf(&b, " - Last: %s %s", record.LastPrice.Decimal.String(), models.Currency)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func sortedCollections(tracked map[string]models.WatchRecord) []string {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
