package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homefeed/listing-ingestion-service/internal/config"
	"github.com/homefeed/listing-ingestion-service/internal/models"
)

const (
	listingsCollection = "listings"
	imagesCollection   = "listing_images"
	statusCollection   = "crawl_status"

	// Fixed document id for the singleton crawl status record.
	statusDocID = "crawl_status"
)

// MongoStorage implements ListingStore using MongoDB.
type MongoStorage struct {
	client   *mongo.Client
	listings *mongo.Collection
	images   *mongo.Collection
	status   *mongo.Collection
}

// NewMongoStorage connects to MongoDB and ensures the indexes the ingestion
// pipeline relies on: a unique index on listings.listing_key and a secondary
// index on listing_images.listing_key.
func NewMongoStorage(ctx context.Context, cfg config.StorageConfig) (*MongoStorage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(cfg.Database)
	storage := &MongoStorage{
		client:   client,
		listings: db.Collection(listingsCollection),
		images:   db.Collection(imagesCollection),
		status:   db.Collection(statusCollection),
	}

	if err := storage.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	return storage, nil
}

func (m *MongoStorage) ensureIndexes(ctx context.Context) error {
	_, err := m.listings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "listing_key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("listings index: %w", err)
	}

	_, err = m.images.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "listing_key", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("listing_images index: %w", err)
	}

	return nil
}

// UpsertListing inserts or fully replaces the listing document keyed by
// listing_key. Last writer wins; crawl cycles are serialized by the
// scheduler so no optimistic concurrency is needed.
func (m *MongoStorage) UpsertListing(ctx context.Context, listing models.Listing) (bool, error) {
	filter := bson.M{"listing_key": listing.ListingKey}
	update := bson.M{"$set": listing}

	result, err := m.listings.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("failed to upsert listing %s: %w", listing.ListingKey, err)
	}

	return result.UpsertedCount > 0, nil
}

// DeleteListing removes the listing document for the given key.
func (m *MongoStorage) DeleteListing(ctx context.Context, listingKey string) error {
	_, err := m.listings.DeleteOne(ctx, bson.M{"listing_key": listingKey})
	if err != nil {
		return fmt.Errorf("failed to delete listing %s: %w", listingKey, err)
	}
	return nil
}

// GetListing retrieves one listing by key, or nil when absent.
func (m *MongoStorage) GetListing(ctx context.Context, listingKey string) (*models.Listing, error) {
	var listing models.Listing
	err := m.listings.FindOne(ctx, bson.M{"listing_key": listingKey}).Decode(&listing)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %s: %w", listingKey, err)
	}
	return &listing, nil
}

// GetListings retrieves listings with pagination, newest crawl first.
func (m *MongoStorage) GetListings(ctx context.Context, limit int, offset int) ([]models.Listing, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.D{{Key: "last_crawled", Value: -1}})

	cursor, err := m.listings.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find listings: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []models.Listing
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}
	return listings, nil
}

// ExistingKeys reports which of the given listing keys already have a
// document in the store, using a single $in query per call.
func (m *MongoStorage) ExistingKeys(ctx context.Context, listingKeys []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(listingKeys))
	if len(listingKeys) == 0 {
		return existing, nil
	}

	filter := bson.M{"listing_key": bson.M{"$in": listingKeys}}
	opts := options.Find().SetProjection(bson.M{"listing_key": 1})

	cursor, err := m.listings.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing keys: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc struct {
			ListingKey string `bson:"listing_key"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode listing key: %w", err)
		}
		existing[doc.ListingKey] = true
	}
	return existing, cursor.Err()
}

// CountImages counts stored image rows for a listing.
func (m *MongoStorage) CountImages(ctx context.Context, listingKey string) (int64, error) {
	count, err := m.images.CountDocuments(ctx, bson.M{"listing_key": listingKey})
	if err != nil {
		return 0, fmt.Errorf("failed to count images for %s: %w", listingKey, err)
	}
	return count, nil
}

// ImagesForListing returns the stored image rows for a listing in insertion
// order.
func (m *MongoStorage) ImagesForListing(ctx context.Context, listingKey string) ([]models.ListingImage, error) {
	cursor, err := m.images.Find(ctx, bson.M{"listing_key": listingKey})
	if err != nil {
		return nil, fmt.Errorf("failed to find images for %s: %w", listingKey, err)
	}
	defer cursor.Close(ctx)

	var images []models.ListingImage
	if err := cursor.All(ctx, &images); err != nil {
		return nil, fmt.Errorf("failed to decode images: %w", err)
	}
	return images, nil
}

// InsertImage registers one stored image row.
func (m *MongoStorage) InsertImage(ctx context.Context, image models.ListingImage) error {
	_, err := m.images.InsertOne(ctx, image)
	if err != nil {
		return fmt.Errorf("failed to insert image for %s: %w", image.ListingKey, err)
	}
	return nil
}

// DeleteImages removes all image rows for a listing.
func (m *MongoStorage) DeleteImages(ctx context.Context, listingKey string) error {
	_, err := m.images.DeleteMany(ctx, bson.M{"listing_key": listingKey})
	if err != nil {
		return fmt.Errorf("failed to delete images for %s: %w", listingKey, err)
	}
	return nil
}

// GetCrawlStatus retrieves the singleton crawl status document. A default
// zero-valued status is returned when the service has never run.
func (m *MongoStorage) GetCrawlStatus(ctx context.Context) (*models.CrawlStatus, error) {
	var status models.CrawlStatus
	err := m.status.FindOne(ctx, bson.M{"_id": statusDocID}).Decode(&status)
	if err == mongo.ErrNoDocuments {
		return &models.CrawlStatus{State: "never_run"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl status: %w", err)
	}
	return &status, nil
}

// UpdateCrawlStatus upserts the singleton crawl status document.
func (m *MongoStorage) UpdateCrawlStatus(ctx context.Context, status models.CrawlStatus) error {
	filter := bson.M{"_id": statusDocID}
	update := bson.M{"$set": status}

	_, err := m.status.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update crawl status: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (m *MongoStorage) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
