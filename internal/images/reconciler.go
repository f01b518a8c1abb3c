package images

import (
	"context"
	"log"

	"github.com/homefeed/listing-ingestion-service/internal/models"
)

// ImageStore is the slice of the document store the reconciler needs.
type ImageStore interface {
	CountImages(ctx context.Context, listingKey string) (int64, error)
	ImagesForListing(ctx context.Context, listingKey string) ([]models.ListingImage, error)
	InsertImage(ctx context.Context, image models.ListingImage) error
}

// Processor runs one image through the download/compress/upload pipeline.
type Processor interface {
	Process(ctx context.Context, sourceURL string) (string, error)
}

// Reconciler decides which of a listing's media URLs to fetch based on how
// many images are already stored for the listing key. Images are processed
// strictly sequentially per listing; the first successful upload in a pass
// becomes the main image.
type Reconciler struct {
	store    ImageStore
	pipeline Processor
	cap      int
}

// NewReconciler creates a Reconciler with the given per-listing image cap.
func NewReconciler(store ImageStore, pipeline Processor, cap int) *Reconciler {
	return &Reconciler{store: store, pipeline: pipeline, cap: cap}
}

// Reconcile fills the gap between stored images and the cap for one listing
// and returns the resolved main image URL ("" when no image could be
// resolved). When the cap is already reached, no fetching happens and the
// first stored image becomes the main image.
func (r *Reconciler) Reconcile(ctx context.Context, listingKey string, mediaURLs []string) (string, error) {
	count, err := r.store.CountImages(ctx, listingKey)
	if err != nil {
		return "", err
	}

	if count >= int64(r.cap) {
		existing, err := r.store.ImagesForListing(ctx, listingKey)
		if err != nil {
			return "", err
		}
		if len(existing) == 0 {
			return "", nil
		}
		return existing[0].ImageURL, nil
	}

	existing, err := r.store.ImagesForListing(ctx, listingKey)
	if err != nil {
		return "", err
	}
	stored := make(map[string]bool, len(existing))
	for _, img := range existing {
		stored[img.ImageURL] = true
	}

	remaining := r.cap - int(count)
	mainImageURL := ""

	for _, sourceURL := range mediaURLs {
		if remaining == 0 {
			break
		}

		storageURL, err := r.pipeline.Process(ctx, sourceURL)
		if err != nil {
			log.Printf("[images] Skipping image for %s: %v", listingKey, err)
			continue
		}

		// Dedup by final storage URL: the storage URL is the durable
		// reference, and distinct source URLs can map to the same object.
		if stored[storageURL] {
			continue
		}

		if err := r.store.InsertImage(ctx, models.ListingImage{
			ListingKey: listingKey,
			ImageURL:   storageURL,
		}); err != nil {
			log.Printf("[images] Failed to register image for %s: %v", listingKey, err)
			continue
		}

		stored[storageURL] = true
		remaining--
		if mainImageURL == "" {
			mainImageURL = storageURL
		}
	}

	if mainImageURL == "" && len(existing) > 0 {
		mainImageURL = existing[0].ImageURL
	}

	return mainImageURL, nil
}
