// Package cart holds the shopping cart rules: a non-empty cart is locked to
// the currency of its first item, and its lines are periodically revalidated
// against current prices and stock.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrCurrencyMismatch = errors.New("cart is locked to a different currency")
	ErrItemNotFound     = errors.New("item is not in the cart")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrOutOfStock       = errors.New("variant is out of stock")
	// ErrVariantGone is returned by a PriceSource for variants that no longer exist.
	ErrVariantGone = errors.New("variant no longer exists")
)

// Item is one cart line.
type Item struct {
	VariantID uint
	Quantity  uint
	UnitPrice decimal.Decimal
	Currency  string
}

// Cart is the in-memory view of a cart.
// LockedCurrency is empty exactly when Items is empty.
type Cart struct {
	LockedCurrency string
	Items          []Item
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Find returns the line for variantID.
func (c *Cart) Find(variantID uint) (Item, bool) {
	for _, item := range c.Items {
		if item.VariantID == variantID {
			return item, true
		}
	}
	return Item{}, false
}

// Add puts item into the cart. The first item of an empty cart fixes the
// locked currency; items in any other currency are rejected without touching
// the cart. Adding a variant that is already present merges the quantities,
// capped at stock when stock is non-nil.
func (c *Cart) Add(item Item, stock *uint) error {
	if item.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if stock != nil && *stock == 0 {
		return ErrOutOfStock
	}
	if !c.IsEmpty() && c.LockedCurrency != item.Currency {
		return fmt.Errorf("%w: cart uses %s, item uses %s", ErrCurrencyMismatch, c.LockedCurrency, item.Currency)
	}

	for i := range c.Items {
		if c.Items[i].VariantID != item.VariantID {
			continue
		}
		c.Items[i].Quantity = capQuantity(c.Items[i].Quantity+item.Quantity, stock)
		c.Items[i].UnitPrice = item.UnitPrice
		return nil
	}

	item.Quantity = capQuantity(item.Quantity, stock)
	c.Items = append(c.Items, item)
	c.LockedCurrency = item.Currency
	return nil
}

// UpdateQuantity sets the quantity of an existing line, capped at stock.
func (c *Cart) UpdateQuantity(variantID, quantity uint, stock *uint) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			c.Items[i].Quantity = capQuantity(quantity, stock)
			return nil
		}
	}
	return ErrItemNotFound
}

// Remove deletes a line. Removing the last line releases the currency lock.
func (c *Cart) Remove(variantID uint) error {
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.relock()
			return nil
		}
	}
	return ErrItemNotFound
}

func (c *Cart) Clear() {
	c.Items = nil
	c.LockedCurrency = ""
}

// Subtotal sums every line in the locked currency.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// TotalQuantity is the number of units across all lines.
func (c *Cart) TotalQuantity() uint {
	var n uint
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) relock() {
	if c.IsEmpty() {
		c.LockedCurrency = ""
		return
	}
	c.LockedCurrency = c.Items[0].Currency
}

func capQuantity(quantity uint, stock *uint) uint {
	if stock != nil && quantity > *stock {
		return *stock
	}
	return quantity
}

// Quote is the current state of a variant as seen by a PriceSource.
type Quote struct {
	UnitPrice decimal.Decimal
	Stock     uint
}

// PriceSource looks up the current price of a variant in the given currency.
type PriceSource interface {
	Lookup(ctx context.Context, variantID uint, currency string) (Quote, error)
}

// RevalidationReport lists the lines changed by Revalidate.
type RevalidationReport struct {
	Dropped  []uint
	Clamped  []uint
	Repriced []uint
}

func (r RevalidationReport) Changed() bool {
	return len(r.Dropped)+len(r.Clamped)+len(r.Repriced) > 0
}

// Revalidate refreshes every line from source. Lines whose variant is gone or
// sold out are dropped, quantities are clamped to stock and drifted prices are
// updated; the lock is then recomputed from what is left. If source fails for
// any other reason the error is logged and the cart is left exactly as it was.
func (c *Cart) Revalidate(ctx context.Context, source PriceSource, log *zap.Logger) (RevalidationReport, error) {
	var report RevalidationReport
	next := make([]Item, 0, len(c.Items))

	for _, item := range c.Items {
		quote, err := source.Lookup(ctx, item.VariantID, item.Currency)
		if errors.Is(err, ErrVariantGone) {
			report.Dropped = append(report.Dropped, item.VariantID)
			continue
		}
		if err != nil {
			log.Warn("cart revalidation failed, keeping cart unchanged",
				zap.Uint("variant_id", item.VariantID),
				zap.Error(err),
			)
			return RevalidationReport{}, fmt.Errorf("revalidate variant %d: %w", item.VariantID, err)
		}

		if quote.Stock == 0 {
			report.Dropped = append(report.Dropped, item.VariantID)
			continue
		}
		if item.Quantity > quote.Stock {
			item.Quantity = quote.Stock
			report.Clamped = append(report.Clamped, item.VariantID)
		}
		if !item.UnitPrice.Equal(quote.UnitPrice) {
			item.UnitPrice = quote.UnitPrice
			report.Repriced = append(report.Repriced, item.VariantID)
		}
		next = append(next, item)
	}

	c.Items = next
	c.relock()
	return report, nil
}
