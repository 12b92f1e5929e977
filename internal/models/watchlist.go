package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrackedState stores every subscriber's watched collections, keyed by
// subscriber ID and then collection ID.
type TrackedState map[string]map[string]WatchRecord

// WatchRecord is one watched collection of a subscriber.
type WatchRecord struct {
	LastPrice decimal.NullDecimal `json:"lastPrice"` // most recently observed floor price
	Threshold decimal.NullDecimal `json:"threshold"` // alert threshold in percent
	AddedAt   time.Time           `json:"addedAt"`
}

// Clone returns a deep copy of the state.
func (s TrackedState) Clone() TrackedState {
	out := make(TrackedState, len(s))
	for subscriber, collections := range s {
		inner := make(map[string]WatchRecord, len(collections))
		for collection, record := range collections {
			inner[collection] = record
		}
		out[subscriber] = inner
	}
	return out
}

// Pairs returns the number of (subscriber, collection) pairs.
func (s TrackedState) Pairs() int {
	n := 0
	for _, collections := range s {
		n += len(collections)
	}
	return n
}
