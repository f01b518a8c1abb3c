package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/homefeed/listing-ingestion-service/internal/config"
	"github.com/homefeed/listing-ingestion-service/internal/models"
	"github.com/homefeed/listing-ingestion-service/internal/storage"
)

// State is the crawl orchestrator's lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateProcessing  State = "processing"
	StateReconciling State = "reconciling"
	StateStopped     State = "stopped"
)

// ListingFetcher retrieves raw listings modified after a given instant.
type ListingFetcher interface {
	FetchUpdatedListings(ctx context.Context, since time.Time) ([]models.RawListing, error)
}

// ImageReconciler resolves a listing's stored images and main image URL.
type ImageReconciler interface {
	Reconcile(ctx context.Context, listingKey string, mediaURLs []string) (string, error)
}

// Service drives one crawl cycle end to end: fetch updated listings,
// normalize them, reconcile their images, then reconcile the document store.
// Only one cycle runs at a time; ticks arriving while a cycle is in flight
// are rejected. The checkpoint advances to the cycle start time only when
// the cycle completes without a fatal error, so a failed window is re-covered
// on the next tick and upsert idempotence absorbs the re-processing.
type Service struct {
	cfg     config.CrawlerConfig
	store   storage.ListingStore
	objects storage.ObjectStore
	fetcher ListingFetcher
	images  ImageReconciler

	mu         sync.Mutex
	state      State
	stopped    bool
	checkpoint time.Time
}

// NewService creates the crawl orchestrator.
func NewService(cfg config.CrawlerConfig, store storage.ListingStore, objects storage.ObjectStore, fetcher ListingFetcher, images ImageReconciler) *Service {
	return &Service{
		cfg:     cfg,
		store:   store,
		objects: objects,
		fetcher: fetcher,
		images:  images,
		state:   StateIdle,
	}
}

// LoadCheckpoint restores the last successful crawl time from the persisted
// crawl status so restarts do not re-trigger the cold-start window.
func (s *Service) LoadCheckpoint(ctx context.Context) error {
	status, err := s.store.GetCrawlStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to load crawl checkpoint: %w", err)
	}

	s.mu.Lock()
	s.checkpoint = status.LastSuccessfulRun
	s.mu.Unlock()
	return nil
}

// State returns the orchestrator's current state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop marks the orchestrator stopped so no further cycles start. An
// in-flight cycle is not interrupted.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.state == StateIdle {
		s.state = StateStopped
	}
}

// RunCycle executes one crawl cycle. A tick arriving while a cycle is
// already running (or after Stop) is ignored.
func (s *Service) RunCycle(ctx context.Context) error {
	if !s.transition(StateIdle, StateFetching) {
		log.Printf("[crawler] Cycle skipped, orchestrator is %s", s.State())
		return nil
	}

	cycleStart := time.Now().UTC()
	log.Println("[crawler] Crawl cycle started")

	upserted, deleted, err := s.runCycle(ctx, cycleStart)

	s.finishCycle()

	if err != nil {
		log.Printf("[crawler] Crawl cycle failed, checkpoint not advanced: %v", err)
		s.recordOutcome(ctx, cycleStart, upserted, deleted, err)
		return err
	}

	s.mu.Lock()
	s.checkpoint = cycleStart
	s.mu.Unlock()

	s.recordOutcome(ctx, cycleStart, upserted, deleted, nil)
	log.Printf("[crawler] Crawl cycle complete: upserted=%d deleted=%d", upserted, deleted)
	return nil
}

func (s *Service) runCycle(ctx context.Context, cycleStart time.Time) (upserted, deleted int, err error) {
	since := s.fetchWindow(cycleStart)

	raw, err := s.fetcher.FetchUpdatedListings(ctx, since)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch phase: %w", err)
	}

	s.setState(StateProcessing)
	listings := s.processListings(ctx, raw)

	s.setState(StateReconciling)
	return s.reconcileStore(ctx, listings)
}

// fetchWindow bounds the modification-time filter for this cycle: the
// checkpoint when one exists, a cold-start lookback otherwise, and never
// further back than MaxLookback even after long downtime.
func (s *Service) fetchWindow(cycleStart time.Time) time.Time {
	s.mu.Lock()
	checkpoint := s.checkpoint
	s.mu.Unlock()

	floor := cycleStart.Add(-s.cfg.MaxLookback)
	if checkpoint.IsZero() {
		return cycleStart.Add(-s.cfg.ColdStartLookback)
	}
	if checkpoint.Before(floor) {
		return floor
	}
	return checkpoint
}

// processListings normalizes raw records and reconciles each listing's
// images. Records without a ListingKey are skipped; no listing's failure
// aborts its siblings.
func (s *Service) processListings(ctx context.Context, raw []models.RawListing) []models.Listing {
	listings := make([]models.Listing, 0, len(raw))

	for _, record := range raw {
		listing, err := NormalizeListing(record)
		if err != nil {
			if errors.Is(err, ErrMissingKey) {
				log.Println("[crawler] Skipping record without ListingKey")
				continue
			}
			log.Printf("[crawler] Skipping malformed record: %v", err)
			continue
		}

		mainImageURL, err := s.images.Reconcile(ctx, listing.ListingKey, record.MediaURLs())
		if err != nil {
			log.Printf("[crawler] Image reconciliation failed for %s: %v", listing.ListingKey, err)
		}
		listing.MainImageURL = mainImageURL

		listings = append(listings, listing)
	}

	return listings
}

// reconcileStore upserts active listings and removes inactive ones along
// with their stored images.
func (s *Service) reconcileStore(ctx context.Context, listings []models.Listing) (upserted, deleted int, err error) {
	existing, err := s.existingKeys(ctx, listings)
	if err != nil {
		return 0, 0, fmt.Errorf("classify existing listings: %w", err)
	}

	now := time.Now().UTC()
	newCount := 0

	for i := range listings {
		listing := listings[i]

		if !listing.IsActive() {
			if err := s.removeListing(ctx, listing.ListingKey); err != nil {
				log.Printf("[crawler] Failed to remove inactive listing %s: %v", listing.ListingKey, err)
				continue
			}
			deleted++
			continue
		}

		listing.LastCrawled = now
		created, err := s.store.UpsertListing(ctx, listing)
		if err != nil {
			log.Printf("[crawler] Failed to upsert listing %s: %v", listing.ListingKey, err)
			continue
		}
		upserted++
		if created || !existing[listing.ListingKey] {
			newCount++
		}
	}

	log.Printf("[crawler] Store reconciled: new=%d updated=%d removed=%d", newCount, upserted-newCount, deleted)
	return upserted, deleted, nil
}

// existingKeys classifies the batch against the store in chunked $in
// queries. Classification only feeds logging; upsert semantics are
// unconditional either way.
func (s *Service) existingKeys(ctx context.Context, listings []models.Listing) (map[string]bool, error) {
	keys := make([]string, 0, len(listings))
	for i := range listings {
		keys = append(keys, listings[i].ListingKey)
	}

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(keys)
	}

	existing := make(map[string]bool, len(keys))
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		batch, err := s.store.ExistingKeys(ctx, keys[start:end])
		if err != nil {
			return nil, err
		}
		for key := range batch {
			existing[key] = true
		}
	}

	return existing, nil
}

// removeListing cascades deletion of an inactive listing: best-effort
// deletion of the backing storage objects, then the image rows, then the
// listing document. Storage URLs that match no known prefix are skipped.
func (s *Service) removeListing(ctx context.Context, listingKey string) error {
	images, err := s.store.ImagesForListing(ctx, listingKey)
	if err != nil {
		return fmt.Errorf("load images: %w", err)
	}

	for _, image := range images {
		key, ok := s.objects.KeyFromURL(image.ImageURL)
		if !ok {
			continue
		}
		if err := s.objects.Delete(ctx, key); err != nil {
			// Not retried and does not block row deletion.
			log.Printf("[crawler] Failed to delete object %s: %v", key, err)
		}
	}

	if err := s.store.DeleteImages(ctx, listingKey); err != nil {
		return fmt.Errorf("delete image rows: %w", err)
	}
	if err := s.store.DeleteListing(ctx, listingKey); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}

	return nil
}

// recordOutcome persists the cycle outcome; failures here are logged only.
func (s *Service) recordOutcome(ctx context.Context, cycleStart time.Time, upserted, deleted int, cycleErr error) {
	status, err := s.store.GetCrawlStatus(ctx)
	if err != nil {
		log.Printf("[crawler] Failed to load crawl status: %v", err)
		status = &models.CrawlStatus{}
	}

	status.LastAttempt = cycleStart
	status.ListingsUpserted = upserted
	status.ListingsDeleted = deleted

	if cycleErr != nil {
		status.State = "failed"
		status.ErrorMessage = cycleErr.Error()
	} else {
		status.State = "idle"
		status.ErrorMessage = ""
		status.LastSuccessfulRun = cycleStart
	}

	if err := s.store.UpdateCrawlStatus(ctx, *status); err != nil {
		log.Printf("[crawler] Failed to persist crawl status: %v", err)
	}
}

func (s *Service) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// finishCycle returns the orchestrator to idle, or to stopped when a
// shutdown arrived while the cycle was running.
func (s *Service) finishCycle() {
	s.mu.Lock()
	if s.stopped {
		s.state = StateStopped
	} else {
		s.state = StateIdle
	}
	s.mu.Unlock()
}
