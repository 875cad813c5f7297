package market

import (
	"strconv"

	"marketvault/core/types"
)

const (
	EventTypeAskPlaced    = "market.ask.placed"
	EventTypeAskCancelled = "market.ask.cancelled"
	EventTypeSold         = "market.sold"
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

func askAttributes(a *Ask) map[string]string {
	if a == nil {
		return map[string]string{}
	}
	price := "0"
	if a.Price != nil {
		price = a.Price.String()
	}
	return map[string]string{
		"askId":      strconv.FormatUint(a.ID, 10),
		"collection": strconv.FormatUint(a.Collection, 10),
		"token":      strconv.FormatUint(a.Token, 10),
		"currency":   strconv.FormatUint(a.Currency, 10),
		"price":      price,
		"seller":     a.Seller.String(),
	}
}

// NewAskPlacedEvent returns the canonical payload for a newly placed ask.
func NewAskPlacedEvent(a *Ask) *types.Event {
	return &types.Event{Type: EventTypeAskPlaced, Attributes: askAttributes(a)}
}

// NewAskCancelledEvent returns the canonical payload emitted when an ask is
// withdrawn by the seller or the contract owner.
func NewAskCancelledEvent(a *Ask) *types.Event {
	return &types.Event{Type: EventTypeAskCancelled, Attributes: askAttributes(a)}
}

// NewSoldEvent returns the canonical payload for a settled sale. The token is
// identified by the combined collection/token id so downstream consumers can
// key on a single value.
func NewSoldEvent(a *Ask, buyer types.Address) *types.Event {
	attrs := map[string]string{
		"seller":      a.Seller.String(),
		"buyer":       buyer.String(),
		"collTokenId": CombinedTokenID(a.Collection, a.Token).String(),
		"price":       "0",
	}
	if a.Price != nil {
		attrs["price"] = a.Price.String()
	}
	return &types.Event{Type: EventTypeSold, Attributes: attrs}
}
