package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Pricing Errors
// ---------------------------------------------------------------------------

var (
	// ErrInvalidAmount indicates a negative or otherwise unusable source amount
	ErrInvalidAmount = errors.New("pricing: invalid source amount")
	// ErrInvalidRate indicates a non-positive exchange rate
	ErrInvalidRate = errors.New("pricing: invalid exchange rate")
	// ErrInvalidMarkup indicates a negative markup percentage
	ErrInvalidMarkup = errors.New("pricing: invalid markup percent")
	// ErrInvalidFee indicates a negative handling fee
	ErrInvalidFee = errors.New("pricing: invalid handling fee")
)

// one hundred, used to convert markup percentages to multipliers
var hundred = decimal.NewFromInt(100)

// DestinationPrice converts a source-currency amount into the destination
// listing price:
//
//	source * rate * (1 + markup/100) + fee
//
// rounded to 2 decimal places (half away from zero) and returned as a
// fixed-point string so downstream storage and display never see binary
// float drift.
func DestinationPrice(sourceAmount, rate, markupPercent, handlingFee decimal.Decimal) (string, error) {
	if sourceAmount.IsNegative() {
		return "", fmt.Errorf("%w: %s", ErrInvalidAmount, sourceAmount)
	}
	if !rate.IsPositive() {
		return "", fmt.Errorf("%w: %s", ErrInvalidRate, rate)
	}
	if markupPercent.IsNegative() {
		return "", fmt.Errorf("%w: %s", ErrInvalidMarkup, markupPercent)
	}
	if handlingFee.IsNegative() {
		return "", fmt.Errorf("%w: %s", ErrInvalidFee, handlingFee)
	}

	multiplier := hundred.Add(markupPercent).Div(hundred)
	price := sourceAmount.Mul(rate).Mul(multiplier).Add(handlingFee)

	return price.StringFixed(2), nil
}

// ---------------------------------------------------------------------------
// Cost Breakdown
// ---------------------------------------------------------------------------

// Breakdown is an internal, non-listed cost summary for a single item in
// both currencies. It is advisory only (accounting and order metadata);
// callers must not use it for listing prices.
type Breakdown struct {
	// ItemSource is the item cost in the source currency
	ItemSource decimal.Decimal
	// ShippingSource is the shipping cost in the source currency
	ShippingSource decimal.Decimal
	// ItemDestination is the converted item cost
	ItemDestination decimal.Decimal
	// ShippingDestination is the converted shipping cost
	ShippingDestination decimal.Decimal
	// HandlingDestination is the flat handling fee (destination currency)
	HandlingDestination decimal.Decimal
	// TotalDestination is item + shipping + handling in destination currency
	TotalDestination decimal.Decimal
}

// IsZero reports whether the breakdown carries no cost information.
func (b Breakdown) IsZero() bool {
	return b.TotalDestination.IsZero() && b.ItemSource.IsZero() && b.ShippingSource.IsZero()
}

// CostBreakdown computes the internal total cost of an item (item price +
// shipping + handling) in both currencies. Unlike DestinationPrice it never
// fails: on invalid input or an unavailable rate it returns a zero
// Breakdown, since the result is informational only.
func CostBreakdown(itemSource, shippingSource, rate, markupPercent, handlingFee decimal.Decimal) Breakdown {
	if itemSource.IsNegative() || shippingSource.IsNegative() {
		return Breakdown{}
	}
	if !rate.IsPositive() || markupPercent.IsNegative() || handlingFee.IsNegative() {
		return Breakdown{}
	}

	multiplier := hundred.Add(markupPercent).Div(hundred)
	itemDest := itemSource.Mul(rate).Mul(multiplier).Round(2)
	shippingDest := shippingSource.Mul(rate).Round(2)

	return Breakdown{
		ItemSource:          itemSource,
		ShippingSource:      shippingSource,
		ItemDestination:     itemDest,
		ShippingDestination: shippingDest,
		HandlingDestination: handlingFee.Round(2),
		TotalDestination:    itemDest.Add(shippingDest).Add(handlingFee).Round(2),
	}
}

// ParseAmount parses a decimal amount from feed or API text. It is the
// single coercion point for money fields arriving as strings.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}
