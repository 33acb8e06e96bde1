package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord is one crossing alert as sent to the notifiers.
type AlertRecord struct {
	ID uint `gorm:"primaryKey" json:"-"`

	// idempotency key, one row per detector event
	EventID string `gorm:"type:uuid;not null;uniqueIndex:idx_alert_event_id" json:"eventId"`

	Symbol    string          `gorm:"type:text;not null;index:idx_alert_symbol_fired,priority:1" json:"symbol"`
	Interval  string          `gorm:"type:varchar(10);not null" json:"interval"`
	Direction string          `gorm:"type:varchar(10);not null" json:"direction"`
	Change    decimal.Decimal `gorm:"type:numeric;not null" json:"change"`
	Threshold decimal.Decimal `gorm:"type:numeric;not null" json:"threshold"`
	Message   string          `gorm:"type:text;not null" json:"message"`

	FiredAt time.Time `gorm:"not null;index:idx_alert_symbol_fired,priority:2;index:idx_alert_fired" json:"firedAt"`

	RecordedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

// TableName overrides the default table name for GORM.
func (AlertRecord) TableName() string {
	return "alert_record"
}
