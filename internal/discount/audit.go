package discount

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// DiscountComputedSubject топик события о завершенном расчете
const DiscountComputedSubject = "discount.computed"

// AuditRecorder сохраняет итог саги
type AuditRecorder interface {
	Record(ctx context.Context, audit *DiscountAudit) error
}

// DiscountAudit запись журнала расчетов скидки
type DiscountAudit struct {
	ID             uint             `gorm:"primaryKey"`
	SagaID         string           `gorm:"size:64;uniqueIndex"`
	OrderID        string           `gorm:"size:64;index"`
	UserID         string           `gorm:"size:64"`
	State          string           `gorm:"size:32"`
	FailedStage    string           `gorm:"size:32"`
	FailureKind    string           `gorm:"size:32"`
	OriginalAmount float64
	TotalDiscount  float64
	FinalAmount    float64
	MembershipTier string           `gorm:"size:32"`
	Breakdown      []BreakdownEntry `gorm:"serializer:json"`
	CreatedAt      time.Time
}

// TableName имя таблицы
func (DiscountAudit) TableName() string {
	return "discount_audits"
}

// DiscountComputedEvent событие о завершенном расчете
type DiscountComputedEvent struct {
	SagaID        string  `json:"sagaId"`
	OrderID       string  `json:"orderId,omitempty"`
	UserID        string  `json:"userId"`
	State         string  `json:"state"`
	TotalDiscount float64 `json:"totalDiscount"`
	FinalAmount   float64 `json:"finalAmount"`
}

// EventSubject реализует persistence.Publishable
func (a *DiscountAudit) EventSubject() string {
	return DiscountComputedSubject
}

// EventPayload реализует persistence.Publishable
func (a *DiscountAudit) EventPayload() interface{} {
	return DiscountComputedEvent{
		SagaID:        a.SagaID,
		OrderID:       a.OrderID,
		UserID:        a.UserID,
		State:         a.State,
		TotalDiscount: a.TotalDiscount,
		FinalAmount:   a.FinalAmount,
	}
}

// newAudit строит запись по результату или ошибке саги
func newAudit(sagaID string, req DiscountRequest, result *DiscountResult, err error) *DiscountAudit {
	audit := &DiscountAudit{
		SagaID:         sagaID,
		OrderID:        req.OrderID,
		UserID:         req.UserID,
		OriginalAmount: round2(req.OriginalAmount),
	}

	if result != nil {
		audit.State = StateFinalized
		audit.TotalDiscount = result.TotalDiscount
		audit.FinalAmount = result.FinalAmount
		audit.MembershipTier = result.MembershipTier
		audit.Breakdown = result.Breakdown
		return audit
	}

	audit.State = StateFailed
	var derr *DiscountError
	if errors.As(err, &derr) {
		audit.FailedStage = derr.Stage
		audit.FailureKind = string(derr.Kind)
		if derr.Context != nil {
			audit.TotalDiscount = derr.Context.TotalDiscount()
			audit.FinalAmount = derr.Context.FinalAmount()
			audit.Breakdown = derr.Context.Breakdown
		}
	}
	return audit
}

// GormAuditRecorder сохраняет записи через gorm
type GormAuditRecorder struct {
	db *gorm.DB
}

// NewGormAuditRecorder создает новый GormAuditRecorder
func NewGormAuditRecorder(db *gorm.DB) *GormAuditRecorder {
	return &GormAuditRecorder{db: db}
}

// Migrate создает таблицу журнала
func (r *GormAuditRecorder) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&DiscountAudit{})
}

// Record сохраняет запись
func (r *GormAuditRecorder) Record(ctx context.Context, audit *DiscountAudit) error {
	return r.db.WithContext(ctx).Create(audit).Error
}
