package models

import "github.com/shopspring/decimal"

// PriceAlert is a threshold crossing for one subscriber's collection.
type PriceAlert struct {
	Subscriber string
	Collection string
	OldPrice   decimal.Decimal
	NewPrice   decimal.Decimal
	ChangePct  decimal.Decimal // signed
}
