// Package discount вычисляет скидку заказа сагой: проверка купонов, затем скидка уровня лояльности.
package discount

import (
	"math"
	"strings"
)

// DiscountType тип составляющей скидки
type DiscountType string

const (
	DiscountTypeProduct    DiscountType = "PRODUCT"
	DiscountTypeOrderLevel DiscountType = "ORDER_LEVEL"
	DiscountTypeCoupon     DiscountType = "COUPON"
	DiscountTypeTier       DiscountType = "TIER"
)

// Источники составляющих скидки
const (
	SourceRequest       = "request"
	SourceCouponService = "coupon-service"
	SourceTierService   = "tier-service"
)

// BreakdownEntry одна составляющая итоговой скидки
type BreakdownEntry struct {
	Type        DiscountType `json:"type"`
	Code        string       `json:"code,omitempty"`
	Description string       `json:"description"`
	Amount      float64      `json:"amount"`
	Source      string       `json:"source"`
}

// DiscountContext накопленное состояние расчета.
// RunningAmount не возрастает от этапа к этапу, Breakdown только дополняется.
type DiscountContext struct {
	OriginalAmount     float64          `json:"originalAmount"`
	ProductDiscount    float64          `json:"productDiscount"`
	OrderLevelDiscount float64          `json:"orderLevelDiscount"`
	CouponDiscount     float64          `json:"couponDiscount"`
	TierDiscount       float64          `json:"tierDiscount"`
	RunningAmount      float64          `json:"runningAmount"`
	MembershipTier     string           `json:"membershipTier,omitempty"`
	ValidCoupons       []string         `json:"validCoupons,omitempty"`
	Breakdown          []BreakdownEntry `json:"breakdown"`
}

// NewDiscountContext создает контекст и применяет скидки, посчитанные вызывающей стороной
func NewDiscountContext(originalAmount, productDiscount, orderLevelDiscount float64) *DiscountContext {
	c := &DiscountContext{
		OriginalAmount: round2(originalAmount),
		RunningAmount:  round2(originalAmount),
		Breakdown:      make([]BreakdownEntry, 0, 4),
	}
	c.ProductDiscount = c.apply(BreakdownEntry{
		Type:        DiscountTypeProduct,
		Description: "Product-level discounts",
		Amount:      productDiscount,
		Source:      SourceRequest,
	})
	c.OrderLevelDiscount = c.apply(BreakdownEntry{
		Type:        DiscountTypeOrderLevel,
		Description: "Order-level discount",
		Amount:      orderLevelDiscount,
		Source:      SourceRequest,
	})
	return c
}

// ApplyCoupons применяет скидку по купонам
func (c *DiscountContext) ApplyCoupons(discount float64, validCoupons []string) float64 {
	c.ValidCoupons = append([]string(nil), validCoupons...)
	c.CouponDiscount = c.apply(BreakdownEntry{
		Type:        DiscountTypeCoupon,
		Code:        strings.Join(validCoupons, ","),
		Description: "Coupon discount",
		Amount:      discount,
		Source:      SourceCouponService,
	})
	return c.CouponDiscount
}

// ApplyTier применяет скидку уровня лояльности
func (c *DiscountContext) ApplyTier(discount float64, tier string) float64 {
	c.MembershipTier = tier
	c.TierDiscount = c.apply(BreakdownEntry{
		Type:        DiscountTypeTier,
		Code:        tier,
		Description: "Membership tier discount",
		Amount:      discount,
		Source:      SourceTierService,
	})
	return c.TierDiscount
}

// apply ограничивает скидку диапазоном [0, RunningAmount], уменьшает RunningAmount
// и добавляет ненулевую составляющую в Breakdown. Возвращает примененную сумму.
func (c *DiscountContext) apply(entry BreakdownEntry) float64 {
	amount := clamp(round2(entry.Amount), 0, c.RunningAmount)
	if amount == 0 {
		return 0
	}
	entry.Amount = amount
	c.RunningAmount = round2(c.RunningAmount - amount)
	c.Breakdown = append(c.Breakdown, entry)
	return amount
}

// TotalDiscount сумма всех составляющих Breakdown
func (c *DiscountContext) TotalDiscount() float64 {
	return SumBreakdown(c.Breakdown)
}

// FinalAmount итоговая сумма: max(0, OriginalAmount - TotalDiscount)
func (c *DiscountContext) FinalAmount() float64 {
	return math.Max(0, round2(c.OriginalAmount-c.TotalDiscount()))
}

// Snapshot возвращает копию контекста
func (c *DiscountContext) Snapshot() *DiscountContext {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ValidCoupons = append([]string(nil), c.ValidCoupons...)
	cp.Breakdown = append([]BreakdownEntry(nil), c.Breakdown...)
	return &cp
}

// SumBreakdown суммирует составляющие в порядке применения
func SumBreakdown(entries []BreakdownEntry) float64 {
	total := 0.0
	for _, e := range entries {
		total = round2(total + e.Amount)
	}
	return total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo || math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
