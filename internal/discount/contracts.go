package discount

// Операции upstream сервисов, топики определяются через invoke.TopicResolver
const (
	OperationValidateCoupons = "coupon.validate"
	OperationTierDiscount    = "tier.discount"
)

// OperationComputeDiscount операция, которую обслуживает Calculator.Serve
const OperationComputeDiscount = "discount.compute"

// HeaderSagaID заголовок с идентификатором саги
const HeaderSagaID = "X-Saga-ID"

// CouponValidationRequest запрос к сервису купонов
type CouponValidationRequest struct {
	CorrelationID string   `json:"correlationId"`
	UserID        string   `json:"userId"`
	CouponCodes   []string `json:"couponCodes"`
	Amount        float64  `json:"amount"`
}

// CouponError купон, не прошедший проверку
type CouponError struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// CouponValidationReply ответ сервиса купонов
type CouponValidationReply struct {
	TotalDiscount      float64       `json:"totalDiscount"`
	ValidCoupons       []string      `json:"validCoupons"`
	AmountAfterCoupons float64       `json:"amountAfterCoupons"`
	Errors             []CouponError `json:"errors,omitempty"`
}

// ContextTotals накопленные суммы, передаваемые сервису уровней
type ContextTotals struct {
	OriginalAmount     float64 `json:"originalAmount"`
	ProductDiscount    float64 `json:"productDiscount"`
	OrderLevelDiscount float64 `json:"orderLevelDiscount"`
	CouponDiscount     float64 `json:"couponDiscount"`
}

// TierDiscountRequest запрос к сервису уровней лояльности
type TierDiscountRequest struct {
	CorrelationID string        `json:"correlationId"`
	UserID        string        `json:"userId"`
	Amount        float64       `json:"amount"`
	ContextTotals ContextTotals `json:"contextTotals"`
}

// TierDiscountReply ответ сервиса уровней лояльности
type TierDiscountReply struct {
	TierDiscount   float64 `json:"tierDiscount"`
	MembershipTier string  `json:"membershipTier"`
	FinalAmount    float64 `json:"finalAmount"`
}

// DiscountRequest входной запрос расчета скидки.
// ProductDiscount и OrderLevelDiscount посчитаны вызывающей стороной.
type DiscountRequest struct {
	OrderID            string   `json:"orderId"`
	UserID             string   `json:"userId" validate:"required"`
	OriginalAmount     float64  `json:"originalAmount" validate:"gte=0"`
	ProductDiscount    float64  `json:"productDiscount" validate:"gte=0"`
	OrderLevelDiscount float64  `json:"orderLevelDiscount" validate:"gte=0"`
	CouponCodes        []string `json:"couponCodes" validate:"omitempty,dive,required"`
}

// uniqueCoupons убирает повторы, сохраняя порядок
func (r DiscountRequest) uniqueCoupons() []string {
	if len(r.CouponCodes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(r.CouponCodes))
	codes := make([]string, 0, len(r.CouponCodes))
	for _, code := range r.CouponCodes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// DiscountResult результат успешно завершенной саги
type DiscountResult struct {
	SagaID             string                `json:"sagaId"`
	OrderID            string                `json:"orderId,omitempty"`
	OriginalAmount     float64               `json:"originalAmount"`
	ProductDiscount    float64               `json:"productDiscount"`
	OrderLevelDiscount float64               `json:"orderLevelDiscount"`
	CouponDiscount     float64               `json:"couponDiscount"`
	TierDiscount       float64               `json:"tierDiscount"`
	TotalDiscount      float64               `json:"totalDiscount"`
	FinalAmount        float64               `json:"finalAmount"`
	MembershipTier     string                `json:"membershipTier,omitempty"`
	ValidCoupons       []string              `json:"validCoupons,omitempty"`
	Breakdown          []BreakdownEntry      `json:"breakdown"`
	CouponFailure      *PartialCouponFailure `json:"couponFailure,omitempty"`
}

func newDiscountResult(sagaID, orderID string, c *DiscountContext, partial *PartialCouponFailure) *DiscountResult {
	return &DiscountResult{
		SagaID:             sagaID,
		OrderID:            orderID,
		OriginalAmount:     c.OriginalAmount,
		ProductDiscount:    c.ProductDiscount,
		OrderLevelDiscount: c.OrderLevelDiscount,
		CouponDiscount:     c.CouponDiscount,
		TierDiscount:       c.TierDiscount,
		TotalDiscount:      c.TotalDiscount(),
		FinalAmount:        c.FinalAmount(),
		MembershipTier:     c.MembershipTier,
		ValidCoupons:       append([]string(nil), c.ValidCoupons...),
		Breakdown:          append([]BreakdownEntry(nil), c.Breakdown...),
		CouponFailure:      partial,
	}
}
