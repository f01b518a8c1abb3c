package storage

import (
	"context"

	"github.com/homefeed/listing-ingestion-service/internal/models"
)

// ListingStore defines the contract for the document store backing the
// listings and listing_images collections.
type ListingStore interface {
	UpsertListing(ctx context.Context, listing models.Listing) (created bool, err error)
	DeleteListing(ctx context.Context, listingKey string) error
	GetListing(ctx context.Context, listingKey string) (*models.Listing, error)
	GetListings(ctx context.Context, limit int, offset int) ([]models.Listing, error)
	ExistingKeys(ctx context.Context, listingKeys []string) (map[string]bool, error)

	CountImages(ctx context.Context, listingKey string) (int64, error)
	ImagesForListing(ctx context.Context, listingKey string) ([]models.ListingImage, error)
	InsertImage(ctx context.Context, image models.ListingImage) error
	DeleteImages(ctx context.Context, listingKey string) error

	GetCrawlStatus(ctx context.Context) (*models.CrawlStatus, error)
	UpdateCrawlStatus(ctx context.Context, status models.CrawlStatus) error

	Close(ctx context.Context) error
}

// ObjectStore defines the contract for durable image object storage.
type ObjectStore interface {
	// Put uploads a publicly readable object and returns its public URL.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error
	// KeyFromURL resolves a public URL back to an object key. It returns
	// false for URLs that do not belong to this store.
	KeyFromURL(publicURL string) (string, bool)
}
