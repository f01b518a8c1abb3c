package models

import "time"

// Listing statuses as reported by the upstream feed. Anything other than
// Active is treated as terminal and triggers removal from the store.
const (
	StatusActive = "Active"
)

// RawListing is a single record from the upstream feed as decoded JSON.
// It exists only for the duration of one crawl cycle.
type RawListing map[string]interface{}

// MediaURLs extracts the listing's media URLs in upstream order.
func (r RawListing) MediaURLs() []string {
	media, ok := r["Media"].([]interface{})
	if !ok {
		return nil
	}

	urls := make([]string, 0, len(media))
	for _, item := range media {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if url, ok := entry["MediaURL"].(string); ok && url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

// Listing is the normalized listing document stored in the listings
// collection. Images are never embedded here; they live in the
// listing_images collection keyed by ListingKey.
type Listing struct {
	ListingKey        string                 `bson:"listing_key" json:"listing_key"`
	ListPrice         float64                `bson:"list_price" json:"list_price"`
	OriginalListPrice float64                `bson:"original_list_price" json:"original_list_price"`
	UnparsedAddress   string                 `bson:"unparsed_address" json:"unparsed_address"`
	City              string                 `bson:"city" json:"city"`
	StateOrProvince   string                 `bson:"state_or_province" json:"state_or_province"`
	PostalCode        string                 `bson:"postal_code" json:"postal_code"`
	Latitude          float64                `bson:"latitude" json:"latitude"`
	Longitude         float64                `bson:"longitude" json:"longitude"`
	BedroomsTotal     int                    `bson:"bedrooms_total" json:"bedrooms_total"`
	BathroomsTotal    int                    `bson:"bathrooms_total" json:"bathrooms_total"`
	LivingArea        float64                `bson:"living_area" json:"living_area"`
	LotSizeAcres      float64                `bson:"lot_size_acres" json:"lot_size_acres"`
	YearBuilt         int                    `bson:"year_built" json:"year_built"`
	PropertyType      string                 `bson:"property_type" json:"property_type"`
	StandardStatus    string                 `bson:"standard_status" json:"standard_status"`
	MainImageURL      string                 `bson:"main_image_url" json:"main_image_url"`
	// No omitempty on the bson tag: the upsert $set must overwrite
	// extra_fields even when the latest record carries none.
	ExtraFields map[string]interface{} `bson:"extra_fields" json:"extra_fields,omitempty"`
	LastCrawled time.Time              `bson:"last_crawled" json:"last_crawled"`
}

// IsActive reports whether the listing should be kept in the store.
func (l *Listing) IsActive() bool {
	return l.StandardStatus == StatusActive
}

// ListingImage references one stored image object for a listing.
// At most ten rows exist per listing key (soft cap, enforced at write time).
type ListingImage struct {
	ListingKey string `bson:"listing_key" json:"listing_key"`
	ImageURL   string `bson:"image_url" json:"image_url"`
}

// CrawlStatus tracks the outcome of crawl cycles. LastSuccessfulRun doubles
// as the checkpoint bounding the next fetch window; it is advanced only
// after a cycle completes without a fatal error.
type CrawlStatus struct {
	LastSuccessfulRun time.Time `bson:"last_successful_run" json:"last_successful_run"`
	LastAttempt       time.Time `bson:"last_attempt" json:"last_attempt"`
	State             string    `bson:"state" json:"state"` // "idle", "running", "failed"
	ErrorMessage      string    `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ListingsUpserted  int       `bson:"listings_upserted" json:"listings_upserted"`
	ListingsDeleted   int       `bson:"listings_deleted" json:"listings_deleted"`
}
