package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Storefront/currency"
	"Storefront/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store persists carts with gorm and prices their lines from the catalog.
type Store struct {
	db    *gorm.DB
	rates currency.RateSource
}

func NewStore(db *gorm.DB, rates currency.RateSource) *Store {
	return &Store{db: db, rates: rates}
}

// Lookup implements PriceSource against the product_variants table, converting
// the variant's native price into the requested currency.
func (s *Store) Lookup(ctx context.Context, variantID uint, code string) (Quote, error) {
	var variant models.ProductVariant
	err := s.db.WithContext(ctx).
		Joins("JOIN products ON products.id = product_variants.product_id AND products.deleted_at IS NULL").
		Where("product_variants.id = ? AND products.published = ?", variantID, true).
		First(&variant).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Quote{}, ErrVariantGone
	}
	if err != nil {
		return Quote{}, err
	}

	rates, err := s.rates.Current(ctx)
	if err != nil {
		return Quote{}, err
	}
	price, err := rates.Convert(variant.Price, variant.Currency, code)
	if err != nil {
		return Quote{}, err
	}
	return Quote{UnitPrice: price, Stock: variant.Stock}, nil
}

// FromModel converts a persisted cart into its in-memory form.
func FromModel(m *models.Cart) *Cart {
	c := &Cart{LockedCurrency: m.LockedCurrency}
	for _, it := range m.CartItems {
		c.Items = append(c.Items, Item{
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Currency:  it.Currency,
		})
	}
	return c
}

// Load fetches a cart with its lines and their variants.
func (s *Store) Load(ctx context.Context, cartID uint) (*models.Cart, error) {
	var m models.Cart
	err := s.db.WithContext(ctx).
		Preload("CartItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("CartItems.Variant").
		First(&m, cartID).
		Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Save replaces the lines of m with those of c and stores the lock.
func (s *Store) Save(ctx context.Context, m *models.Cart, c *Cart) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("cart_id = ?", m.ID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}

		items := make([]models.CartItem, 0, len(c.Items))
		for _, it := range c.Items {
			items = append(items, models.CartItem{
				CartID:    m.ID,
				VariantID: it.VariantID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				Currency:  it.Currency,
			})
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}

		return tx.Model(m).Update("locked_currency", c.LockedCurrency).Error
	})
	if err != nil {
		return fmt.Errorf("save cart %d: %w", m.ID, err)
	}
	return nil
}

// Revalidate refreshes a persisted cart and writes it back when anything changed.
func (s *Store) Revalidate(ctx context.Context, m *models.Cart, log *zap.Logger) (RevalidationReport, error) {
	c := FromModel(m)
	report, err := c.Revalidate(ctx, s, log)
	if err != nil {
		return report, err
	}
	if report.Changed() || c.LockedCurrency != m.LockedCurrency {
		if err := s.Save(ctx, m, c); err != nil {
			return report, err
		}
	}
	return report, nil
}

// TouchedSince lists carts whose lines, variants or products changed after
// since. Deleted variants and products count as changes.
func (s *Store) TouchedSince(ctx context.Context, since time.Time) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Joins("LEFT JOIN product_variants ON product_variants.id = cart_items.variant_id").
		Joins("LEFT JOIN products ON products.id = product_variants.product_id").
		Where(
			"cart_items.updated_at > ? OR product_variants.id IS NULL OR product_variants.updated_at > ? OR product_variants.deleted_at > ? OR products.updated_at > ? OR products.deleted_at > ?",
			since, since, since, since, since,
		).
		Distinct().
		Pluck("cart_items.cart_id", &ids).
		Error
	return ids, err
}

// Revalidator sweeps carts affected by catalog or cart changes on a fixed
// interval.
type Revalidator struct {
	store     *Store
	interval  time.Duration
	log       *zap.Logger
	lastSweep time.Time
}

func NewRevalidator(store *Store, interval time.Duration, log *zap.Logger) *Revalidator {
	return &Revalidator{store: store, interval: interval, log: log.Named("cart-revalidator")}
}

// Run blocks until ctx is cancelled.
func (r *Revalidator) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.log.Error("cart sweep failed", zap.Error(err))
			} else if n > 0 {
				r.log.Info("cart sweep finished", zap.Int("changed", n))
			}
		}
	}
}

// Sweep revalidates every cart touched since the previous sweep and returns
// how many of them changed. A failing cart is logged and skipped.
func (r *Revalidator) Sweep(ctx context.Context) (int, error) {
	started := time.Now()
	ids, err := r.store.TouchedSince(ctx, r.lastSweep)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, id := range ids {
		m, err := r.store.Load(ctx, id)
		if err != nil {
			r.log.Warn("load cart", zap.Uint("cart_id", id), zap.Error(err))
			continue
		}
		report, err := r.store.Revalidate(ctx, m, r.log)
		if err != nil {
			continue
		}
		if report.Changed() {
			changed++
		}
	}

	r.lastSweep = started
	return changed, nil
}
