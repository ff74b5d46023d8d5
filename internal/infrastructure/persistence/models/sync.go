package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bridgesync/backend/internal/domain/sync"
)

// SyncedProductModel is the GORM persistence model for sync.SyncedProduct.
// The external product ID is the primary key: at most one row per source
// product.
type SyncedProductModel struct {
	ExternalID           string          `gorm:"type:varchar(64);primaryKey;column:external_id"`
	DestinationProductID string          `gorm:"type:varchar(128);index:idx_synced_products_destination"`
	DestinationHandle    string          `gorm:"type:varchar(255)"`
	ListedPrice          string          `gorm:"type:varchar(32)"`
	SourceName           string          `gorm:"type:varchar(512)"`
	SourcePrice          decimal.Decimal `gorm:"type:numeric(18,4)"`
	SourceShippingFee    decimal.Decimal `gorm:"type:numeric(18,4)"`
	SourceUpdatedAt      *time.Time      `gorm:"index"`
	Status               string          `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_synced_products_status"`
	LastError            string          `gorm:"type:text"`
	AttemptCount         int             `gorm:"not null;default:0"`
	SuccessCount         int             `gorm:"not null;default:0"`
	CreatedAt            time.Time       `gorm:"not null"`
	LastAttemptAt        *time.Time
	LastSuccessAt        *time.Time
}

// TableName returns the table name for GORM
func (SyncedProductModel) TableName() string {
	return "synced_products"
}

// ToDomain converts the persistence model to a domain SyncedProduct entity.
func (m *SyncedProductModel) ToDomain() *sync.SyncedProduct {
	return &sync.SyncedProduct{
		ExternalID:           m.ExternalID,
		DestinationProductID: m.DestinationProductID,
		DestinationHandle:    m.DestinationHandle,
		ListedPrice:          m.ListedPrice,
		SourceName:           m.SourceName,
		SourcePrice:          m.SourcePrice,
		SourceShippingFee:    m.SourceShippingFee,
		SourceUpdatedAt:      m.SourceUpdatedAt,
		Status:               sync.Status(m.Status),
		LastError:            m.LastError,
		AttemptCount:         m.AttemptCount,
		SuccessCount:         m.SuccessCount,
		CreatedAt:            m.CreatedAt,
		LastAttemptAt:        m.LastAttemptAt,
		LastSuccessAt:        m.LastSuccessAt,
	}
}

// FromDomain populates the persistence model from a domain SyncedProduct entity.
func (m *SyncedProductModel) FromDomain(p *sync.SyncedProduct) {
	m.ExternalID = p.ExternalID
	m.DestinationProductID = p.DestinationProductID
	m.DestinationHandle = p.DestinationHandle
	m.ListedPrice = p.ListedPrice
	m.SourceName = p.SourceName
	m.SourcePrice = p.SourcePrice
	m.SourceShippingFee = p.SourceShippingFee
	m.SourceUpdatedAt = p.SourceUpdatedAt
	m.Status = p.Status.String()
	m.LastError = p.LastError
	m.AttemptCount = p.AttemptCount
	m.SuccessCount = p.SuccessCount
	m.CreatedAt = p.CreatedAt
	m.LastAttemptAt = p.LastAttemptAt
	m.LastSuccessAt = p.LastSuccessAt
}

// SyncedProductModelFromDomain creates a new persistence model from a domain entity.
func SyncedProductModelFromDomain(p *sync.SyncedProduct) *SyncedProductModel {
	m := &SyncedProductModel{}
	m.FromDomain(p)
	return m
}
