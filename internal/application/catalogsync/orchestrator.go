// Package catalogsync orchestrates catalog reconciliation: it walks a batch
// of normalized feed records and drives each one through the sync state
// store and the destination storefront, isolating per-record failures so a
// single bad listing never aborts a feed run.
package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	syncpkg "sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bridgesync/backend/internal/domain/feed"
	"github.com/bridgesync/backend/internal/domain/order"
	"github.com/bridgesync/backend/internal/domain/pricing"
	"github.com/bridgesync/backend/internal/domain/sync"
	"github.com/bridgesync/backend/internal/infrastructure/csvfeed"
	"github.com/bridgesync/backend/internal/infrastructure/feedclient"
	"github.com/bridgesync/backend/internal/infrastructure/logger"
	"github.com/bridgesync/backend/internal/infrastructure/retry"
)

// ---------------------------------------------------------------------------
// Ports and Configuration
// ---------------------------------------------------------------------------

// FeedFetcher downloads one dated catalog feed file and returns its local
// path. Implemented by the feed client.
type FeedFetcher interface {
	Fetch(ctx context.Context, catalogType feedclient.CatalogType, asOf time.Time) (string, error)
}

// Config holds the orchestrator's pricing and batching knobs.
type Config struct {
	// GroupSize bounds in-flight destination calls; records are processed
	// in groups of this size with a barrier between groups. Minimum 1.
	GroupSize int
	// ExchangeRate converts source-currency amounts to the destination currency
	ExchangeRate decimal.Decimal
	// MarkupPercent is the listing markup applied on top of the converted price
	MarkupPercent decimal.Decimal
	// HandlingFee is the flat destination-currency fee added per listing
	HandlingFee decimal.Decimal
	// ForceResync disables the unchanged-record skip
	ForceResync bool
	// LocationID is the destination inventory location; empty skips inventory writes
	LocationID string
	// ChannelIDs are the sales channels new products are published to
	ChannelIDs []string
	// CategoryAllowList restricts feed rows to the given source categories
	CategoryAllowList []string
	// ImageResolution is substituted into feed image URL templates
	ImageResolution string
}

// Summary reports the outcome of one reconciliation batch.
type Summary struct {
	// Total is the number of records handed to the batch
	Total int
	// Succeeded is the number of records that reached SYNCED
	Succeeded int
	// Errored is the number of records that recorded an error
	Errored int
	// SkippedFilter is the number of feed rows dropped by the inclusion filter
	SkippedFilter int
	// SkippedUnchanged is the number of records skipped as already up to date
	SkippedUnchanged int
}

// ---------------------------------------------------------------------------
// Orchestrator
// ---------------------------------------------------------------------------

// Orchestrator drives catalog reconciliation batches.
type Orchestrator struct {
	repo        sync.StateRepository
	destination sync.DestinationClient
	fetcher     FeedFetcher
	retrier     *retry.Retrier
	cfg         Config
	logger      *zap.Logger
}

// Option is a functional option for Orchestrator configuration.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithFetcher sets the feed fetcher used by RunFeedSync.
func WithFetcher(fetcher FeedFetcher) Option {
	return func(o *Orchestrator) {
		o.fetcher = fetcher
	}
}

// NewOrchestrator creates an Orchestrator over the given state store and
// destination client.
func NewOrchestrator(repo sync.StateRepository, destination sync.DestinationClient, retrier *retry.Retrier, cfg Config, opts ...Option) *Orchestrator {
	if cfg.GroupSize < 1 {
		cfg.GroupSize = 1
	}
	o := &Orchestrator{
		repo:        repo,
		destination: destination,
		retrier:     retrier,
		cfg:         cfg,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ---------------------------------------------------------------------------
// Feed Run
// ---------------------------------------------------------------------------

// RunFeedSync fetches the dated feed file, streams it through the parser
// and normalizer, and reconciles the accepted records. A feed with zero
// accepted rows is a successful no-op. The downloaded file is removed when
// the run finishes.
func (o *Orchestrator) RunFeedSync(ctx context.Context, catalogType feedclient.CatalogType, asOf time.Time) (*Summary, error) {
	if o.fetcher == nil {
		return nil, fmt.Errorf("%w: no feed fetcher configured", sync.ErrConfiguration)
	}

	// Every log line of this cycle carries the same cycle_id.
	ctx, log := logger.WithCycleID(ctx, o.logger, uuid.NewString())

	path, err := o.fetcher.Fetch(ctx, catalogType, asOf)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalogsync: failed to open feed file: %w", err)
	}
	defer f.Close()

	records, filterSkips, err := o.readFeed(ctx, f)
	if err != nil {
		return nil, err
	}

	summary, err := o.SyncBatch(ctx, records)
	if err != nil {
		return nil, err
	}
	summary.SkippedFilter += filterSkips

	log.Info("Feed sync completed",
		zap.String("catalog_type", string(catalogType)),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("errored", summary.Errored),
		zap.Int("skipped_filter", summary.SkippedFilter),
		zap.Int("skipped_unchanged", summary.SkippedUnchanged),
	)
	return summary, nil
}

// readFeed streams the feed through the parser and normalizer. Rows the
// filter drops are counted and, when they carry an external ID, recorded as
// SKIPPED_FILTER in the state store. Malformed CSV rows are logged and
// skipped; they never abort the run.
func (o *Orchestrator) readFeed(ctx context.Context, r io.Reader) ([]*feed.CatalogRecord, int, error) {
	parser, err := csvfeed.NewParser(r)
	if err != nil {
		return nil, 0, err
	}
	if err := parser.RequireColumns(feed.RequiredColumns); err != nil {
		return nil, 0, err
	}

	log := logger.FromContext(ctx)
	normalizer := feed.NewNormalizer(
		feed.WithCategoryAllowList(o.cfg.CategoryAllowList),
		feed.WithImageResolution(o.cfg.ImageResolution),
		feed.WithLogger(log),
	)

	var records []*feed.CatalogRecord
	// Duplicate external IDs collapse to the last row seen, so SyncBatch
	// never runs two workers against the same state row.
	position := make(map[string]int)
	filterSkips := 0
	for {
		row, err := parser.Next()
		if err == io.EOF {
			break
		}
		var rowErr csvfeed.RowError
		if errors.As(err, &rowErr) {
			log.Warn("Skipping malformed feed row",
				zap.Int("row", rowErr.Row),
				zap.String("reason", rowErr.Message),
			)
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		if row.IsEmpty() {
			continue
		}

		rec, normErr := normalizer.Normalize(row.Values, row.LineNumber)
		if normErr != nil {
			filterSkips++
			o.recordFilterSkip(ctx, row.Values, normErr)
			continue
		}
		if i, seen := position[rec.ExternalID]; seen {
			records[i] = rec
			continue
		}
		position[rec.ExternalID] = len(records)
		records = append(records, rec)
	}

	log.Info("Feed parsed",
		zap.Int("rows_seen", normalizer.RowsSeen()),
		zap.Int("rows_accepted", normalizer.RowsAccepted()),
	)
	return records, filterSkips, nil
}

// recordFilterSkip persists a SKIPPED_FILTER outcome for a dropped row that
// still carries an external ID, so the state store reflects that the latest
// feed row for the ID failed the filter. Best effort.
func (o *Orchestrator) recordFilterSkip(ctx context.Context, values map[string]string, reason error) {
	externalID := values[feed.ColumnExternalID]
	if externalID == "" {
		return
	}

	log := o.contextLogger(ctx)
	state, err := o.repo.UpsertAttempt(ctx, externalID, sync.Snapshot{Name: values[feed.ColumnName]})
	if err != nil {
		log.Warn("Failed to record filter skip",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
		return
	}
	state.MarkSkippedFilter(reason.Error())
	if err := o.repo.Save(ctx, state); err != nil {
		log.Warn("Failed to save filter skip",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
	}
}

// ---------------------------------------------------------------------------
// Batch Reconciliation
// ---------------------------------------------------------------------------

// outcome is the terminal result of reconciling one record.
type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeErrored
	outcomeSkippedUnchanged
)

// SyncBatch reconciles a batch of normalized records. Records run in
// fixed-size concurrency groups; each group completes fully before the next
// starts, bounding in-flight destination calls. A record's failure is
// recorded on its own state row and never aborts the batch.
func (o *Orchestrator) SyncBatch(ctx context.Context, records []*feed.CatalogRecord) (*Summary, error) {
	summary := &Summary{Total: len(records)}
	if len(records) == 0 {
		return summary, nil
	}

	var mu syncpkg.Mutex
	for start := 0; start < len(records); start += o.cfg.GroupSize {
		end := start + o.cfg.GroupSize
		if end > len(records) {
			end = len(records)
		}

		var wg syncpkg.WaitGroup
		for _, rec := range records[start:end] {
			wg.Add(1)
			go func(rec *feed.CatalogRecord) {
				defer wg.Done()
				result := o.syncOne(ctx, rec)
				mu.Lock()
				switch result {
				case outcomeSucceeded:
					summary.Succeeded++
				case outcomeErrored:
					summary.Errored++
				case outcomeSkippedUnchanged:
					summary.SkippedUnchanged++
				}
				mu.Unlock()
			}(rec)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// contextLogger prefers the cycle-scoped logger carried by the context so
// per-record lines keep the cycle_id, falling back to the orchestrator's own
// logger for direct batch calls.
func (o *Orchestrator) contextLogger(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(logger.LoggerKey).(*zap.Logger); ok {
		return log
	}
	return o.logger
}

// syncOne drives one record through the reconciliation flow. The attempt is
// persisted before any remote call; the outcome is persisted after.
func (o *Orchestrator) syncOne(ctx context.Context, rec *feed.CatalogRecord) outcome {
	log := o.contextLogger(ctx).With(zap.String("external_id", rec.ExternalID))

	// The skip decision compares the feed row against the watermark stored
	// by the previous cycle, so the prior state is captured before the
	// attempt write refreshes the snapshot.
	prior, err := o.repo.FindByExternalID(ctx, rec.ExternalID)
	if err != nil && !errors.Is(err, sync.ErrStateNotFound) {
		log.Error("Failed to load sync state", zap.Error(err))
		return outcomeErrored
	}
	skipUnchanged := prior != nil && rec.LastUpdated != nil &&
		prior.ShouldSkipUnchanged(*rec.LastUpdated, o.cfg.ForceResync)

	state, err := o.repo.UpsertAttempt(ctx, rec.ExternalID, sync.Snapshot{
		Name:            rec.Name,
		Price:           rec.Price,
		ShippingFee:     rec.ShippingFee,
		SourceUpdatedAt: rec.LastUpdated,
	})
	if err != nil {
		log.Error("Failed to record sync attempt", zap.Error(err))
		return outcomeErrored
	}

	if skipUnchanged {
		return outcomeSkippedUnchanged
	}

	price, err := pricing.DestinationPrice(rec.Price, o.cfg.ExchangeRate, o.cfg.MarkupPercent, o.cfg.HandlingFee)
	if err != nil {
		log.Error("Price calculation failed", zap.Error(err))
		return o.finishError(ctx, state, err, log)
	}

	product, err := o.pushListing(ctx, rec, state, price)
	if err != nil {
		log.Error("Destination sync failed", zap.Error(err))
		return o.finishError(ctx, state, err, log)
	}

	o.attachExtras(ctx, rec, product, state.DestinationProductID == "", log)

	state.MarkSynced(product.ID, product.Handle, price)
	if err := o.repo.Save(ctx, state); err != nil {
		log.Error("Failed to save sync outcome", zap.Error(err))
		return outcomeErrored
	}
	log.Debug("Record synced",
		zap.String("destination_product_id", product.ID),
		zap.String("listed_price", price),
	)
	return outcomeSucceeded
}

// pushListing creates or updates the destination product and writes the
// variant and inventory level. The destination ID is resolved from stored
// state first, then by tag lookup; a failed lookup degrades to "not found".
func (o *Orchestrator) pushListing(ctx context.Context, rec *feed.CatalogRecord, state *sync.SyncedProduct, price string) (*sync.Product, error) {
	input := sync.ProductInput{
		Title:           rec.Name,
		DescriptionHTML: rec.Description,
		Tags:            buildTags(rec),
		CategoryID:      rec.CategoryID,
	}
	variant := sync.VariantInput{
		Price:           price,
		SKU:             order.EncodeLinkedSKU(rec.ExternalID),
		InventoryPolicy: inventoryPolicyFor(rec.Quantity),
	}

	destinationID := state.DestinationProductID
	if destinationID == "" {
		if existing := o.lookupByTag(ctx, rec.ExternalID); existing != nil {
			destinationID = existing.ID
		}
	}

	var product *sync.Product
	var err error
	if destinationID == "" {
		product, err = retry.Do(ctx, o.retrier, "product create", func(ctx context.Context) (*sync.Product, error) {
			return o.destination.CreateProduct(ctx, input, variant)
		})
		if err != nil {
			return nil, err
		}
	} else {
		input.ID = destinationID
		product, err = retry.Do(ctx, o.retrier, "product update", func(ctx context.Context) (*sync.Product, error) {
			return o.destination.UpdateProduct(ctx, input)
		})
		if err != nil {
			return nil, err
		}
		if product.VariantID != "" {
			_, err = retry.Do(ctx, o.retrier, "variant update", func(ctx context.Context) (struct{}, error) {
				return struct{}{}, o.destination.UpdateVariant(ctx, product.VariantID, variant)
			})
			if err != nil {
				return nil, err
			}
		}
	}

	if o.cfg.LocationID != "" && product.InventoryItemID != "" {
		_, err = retry.Do(ctx, o.retrier, "inventory set", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.destination.SetInventoryLevel(ctx, product.InventoryItemID, o.cfg.LocationID, rec.Quantity)
		})
		if err != nil {
			return nil, err
		}
	}
	return product, nil
}

// lookupByTag resolves the destination product by its external-ID tag.
// Lookup failures degrade to not-found; the record proceeds as a create.
func (o *Orchestrator) lookupByTag(ctx context.Context, externalID string) *sync.Product {
	product, err := o.destination.FindProductByExternalIDTag(ctx, externalID)
	if err != nil {
		o.contextLogger(ctx).Warn("Tag lookup failed, proceeding as not found",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
		return nil
	}
	return product
}

// attachExtras runs the best-effort post-listing steps: media attach, and
// channel publishing for newly created products. Failures here are logged
// only; the core listing already succeeded.
func (o *Orchestrator) attachExtras(ctx context.Context, rec *feed.CatalogRecord, product *sync.Product, created bool, log *zap.Logger) {
	if len(rec.ImageURLs) > 0 {
		media := make([]sync.MediaItem, 0, len(rec.ImageURLs))
		for _, u := range rec.ImageURLs {
			media = append(media, sync.MediaItem{URL: u, Alt: rec.Name})
		}
		result, err := o.destination.AttachMedia(ctx, product.ID, media)
		if err != nil {
			log.Warn("Media attach failed", zap.Error(err))
		} else if len(result.UserErrors) > 0 {
			log.Warn("Media attach rejected items",
				zap.Int("attached", result.AttachedCount),
				zap.Int("rejected", len(result.UserErrors)),
			)
		}
	}

	if created && len(o.cfg.ChannelIDs) > 0 {
		if err := o.destination.PublishProduct(ctx, product.ID, o.cfg.ChannelIDs); err != nil {
			log.Warn("Channel publish failed", zap.Error(err))
		}
	}
}

// finishError records an ERROR outcome on the state row.
func (o *Orchestrator) finishError(ctx context.Context, state *sync.SyncedProduct, cause error, log *zap.Logger) outcome {
	state.MarkError(cause.Error())
	if err := o.repo.Save(ctx, state); err != nil {
		log.Error("Failed to save error outcome", zap.Error(err))
	}
	return outcomeErrored
}

// buildTags assembles the destination tags for a record: the external-ID
// linkage tag first, then the source keywords.
func buildTags(rec *feed.CatalogRecord) []string {
	tags := make([]string, 0, len(rec.Keywords)+1)
	tags = append(tags, sync.ExternalIDTag(rec.ExternalID))
	tags = append(tags, rec.Keywords...)
	return tags
}

// inventoryPolicyFor maps sellable quantity to the destination inventory
// policy: zero stock denies further sales, positive stock tolerates the
// sync lag between feed cycles.
func inventoryPolicyFor(quantity int) sync.InventoryPolicy {
	if quantity <= 0 {
		return sync.InventoryPolicyDeny
	}
	return sync.InventoryPolicyContinue
}
