package discount

import (
	"time"

	"github.com/akriventsev/potter-commerce/framework/invoke"
)

// Policy настройки выполнения саги
type Policy struct {
	// StrictCoupons любой невалидный купон проваливает сагу
	StrictCoupons bool
	CouponTimeout time.Duration
	TierTimeout   time.Duration
}

// DefaultPolicy политика по умолчанию: нестрогая проверка купонов
func DefaultPolicy() Policy {
	return Policy{
		StrictCoupons: false,
		CouponTimeout: 5 * time.Second,
		TierTimeout:   5 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.CouponTimeout <= 0 {
		p.CouponTimeout = def.CouponTimeout
	}
	if p.TierTimeout <= 0 {
		p.TierTimeout = def.TierTimeout
	}
	return p
}

// DefaultTopics топики upstream сервисов по умолчанию
func DefaultTopics() invoke.TopicResolver {
	return invoke.NewPrefixTopicResolver("")
}
