package models

import "github.com/shopspring/decimal"

// Currency is the unit every quote is priced in.
const Currency = "ETH"

// PriceQuote is a collection's current statistics.
type PriceQuote struct {
	Collection string
	FloorPrice decimal.NullDecimal
	Currency   string
	Volume24h  decimal.NullDecimal
	Change24h  decimal.NullDecimal // fraction, 0.05 == 5%
}

// CollectionStats is the provider's stats response.
type CollectionStats struct {
	Total *StatsTotal `json:"total"`
}

// StatsTotal holds the all-time aggregate stats of a collection.
type StatsTotal struct {
	FloorPrice   decimal.NullDecimal `json:"floor_price"`
	OneDayVolume decimal.NullDecimal `json:"one_day_volume"`
	OneDayChange decimal.NullDecimal `json:"one_day_change"`
}
