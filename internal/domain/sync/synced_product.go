package sync

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// SyncedProduct Errors
// ---------------------------------------------------------------------------

var (
	// ErrInvalidExternalID indicates an empty external product ID
	ErrInvalidExternalID = errors.New("sync: invalid external product ID")
	// ErrStateNotFound indicates no sync state exists for an external ID
	ErrStateNotFound = errors.New("sync: state not found")
)

// maxErrorLength bounds the persisted error message; longer upstream
// messages are truncated.
const maxErrorLength = 500

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// Status is the reconciliation state of one external product ID.
type Status string

const (
	// StatusPending indicates the record exists but no outcome was recorded yet
	StatusPending Status = "PENDING"
	// StatusSynced indicates the last reconciliation attempt succeeded
	StatusSynced Status = "SYNCED"
	// StatusError indicates the last reconciliation attempt failed
	StatusError Status = "ERROR"
	// StatusSkippedFilter indicates the last feed row for this ID failed the filter
	StatusSkippedFilter Status = "SKIPPED_FILTER"
)

// IsValid returns true if the status is one of the defined values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSynced, StatusError, StatusSkippedFilter:
		return true
	default:
		return false
	}
}

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Snapshot carries the source-side fields persisted on every attempt.
type Snapshot struct {
	// Name is the source product name at attempt time
	Name string
	// Price is the source item price at attempt time
	Price decimal.Decimal
	// ShippingFee is the source shipping fee at attempt time
	ShippingFee decimal.Decimal
	// SourceUpdatedAt is the feed's last-updated timestamp for the row
	SourceUpdatedAt *time.Time
}

// ---------------------------------------------------------------------------
// SyncedProduct Entity
// ---------------------------------------------------------------------------

// SyncedProduct is the persistent reconciliation state for one external
// product ID. There is at most one per external ID (upsert-by-ID); records
// are created on first encounter and never deleted by the pipeline.
//
// Status transitions: PENDING -> {SYNCED, SKIPPED_FILTER, ERROR};
// SYNCED -> {SYNCED, ERROR}; ERROR -> SYNCED; SKIPPED_FILTER -> SYNCED.
// No state is terminal; every feed cycle may re-evaluate any ID.
type SyncedProduct struct {
	// ExternalID is the marketplace product ID, the unique reconciliation key
	ExternalID string
	// DestinationProductID is the storefront product ID; empty until first create
	DestinationProductID string
	// DestinationHandle is the storefront product handle
	DestinationHandle string
	// ListedPrice is the last price listed on the destination (fixed-point string)
	ListedPrice string
	// SourceName is the source product name snapshot
	SourceName string
	// SourcePrice is the source item price snapshot
	SourcePrice decimal.Decimal
	// SourceShippingFee is the source shipping fee snapshot
	SourceShippingFee decimal.Decimal
	// SourceUpdatedAt is the feed timestamp snapshot, the idempotency watermark
	SourceUpdatedAt *time.Time
	// Status is the reconciliation state machine field
	Status Status
	// LastError holds the truncated message from the last failed attempt
	LastError string
	// AttemptCount counts attempts since the last success
	AttemptCount int
	// SuccessCount counts lifetime successful syncs
	SuccessCount int
	// CreatedAt is when this record was first created
	CreatedAt time.Time
	// LastAttemptAt is when reconciliation last touched this record
	LastAttemptAt *time.Time
	// LastSuccessAt is when reconciliation last succeeded
	LastSuccessAt *time.Time
}

// NewSyncedProduct creates the initial PENDING state for an external ID.
func NewSyncedProduct(externalID string) (*SyncedProduct, error) {
	if externalID == "" {
		return nil, ErrInvalidExternalID
	}
	return &SyncedProduct{
		ExternalID: externalID,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// RecordAttempt registers a reconciliation attempt unconditionally: it
// bumps the attempt counter, refreshes the source snapshot, and stamps the
// attempt time. It must be persisted before any remote call so a crash
// mid-sync still leaves an auditable trail.
func (p *SyncedProduct) RecordAttempt(snapshot Snapshot) {
	now := time.Now().UTC()
	p.AttemptCount++
	p.SourceName = snapshot.Name
	p.SourcePrice = snapshot.Price
	p.SourceShippingFee = snapshot.ShippingFee
	p.SourceUpdatedAt = snapshot.SourceUpdatedAt
	p.LastAttemptAt = &now
}

// MarkSynced records a successful reconciliation: clears error state,
// resets the attempt counter, bumps the success counter, and stores the
// destination identifiers and listed price.
func (p *SyncedProduct) MarkSynced(destinationProductID, handle, listedPrice string) {
	now := time.Now().UTC()
	p.Status = StatusSynced
	p.DestinationProductID = destinationProductID
	p.DestinationHandle = handle
	p.ListedPrice = listedPrice
	p.LastError = ""
	p.AttemptCount = 0
	p.SuccessCount++
	p.LastSuccessAt = &now
}

// MarkError records a failed attempt with a truncated message.
func (p *SyncedProduct) MarkError(message string) {
	p.Status = StatusError
	p.LastError = truncate(message, maxErrorLength)
}

// MarkSkippedFilter records that the latest feed row for this ID was
// dropped by the inclusion filter.
func (p *SyncedProduct) MarkSkippedFilter(reason string) {
	p.Status = StatusSkippedFilter
	p.LastError = truncate(reason, maxErrorLength)
}

// ShouldSkipUnchanged reports whether reconciliation can skip this record:
// it is already SYNCED, the stored source timestamp is at or past the feed
// row's timestamp, and force-resync is not set.
func (p *SyncedProduct) ShouldSkipUnchanged(feedUpdatedAt time.Time, force bool) bool {
	if force {
		return false
	}
	if p.Status != StatusSynced {
		return false
	}
	if p.SourceUpdatedAt == nil {
		return false
	}
	return !p.SourceUpdatedAt.Before(feedUpdatedAt)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
