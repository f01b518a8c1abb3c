package ingestion

import (
	"errors"

	"github.com/homefeed/listing-ingestion-service/internal/models"
)

// ErrMissingKey signals a raw record without a ListingKey. The record is
// skipped; the batch continues.
var ErrMissingKey = errors.New("raw listing record has no ListingKey")

// modeledFields are the upstream field names mapped onto typed Listing
// fields. Everything else (except Media) lands in ExtraFields.
var modeledFields = map[string]bool{
	"ListingKey":            true,
	"ListPrice":             true,
	"OriginalListPrice":     true,
	"UnparsedAddress":       true,
	"City":                  true,
	"StateOrProvince":       true,
	"PostalCode":            true,
	"Latitude":              true,
	"Longitude":             true,
	"BedroomsTotal":         true,
	"BathroomsTotalInteger": true,
	"LivingArea":            true,
	"LotSizeAcres":          true,
	"YearBuilt":             true,
	"PropertyType":          true,
	"StandardStatus":        true,
}

// NormalizeListing maps a raw upstream record into the internal listing
// schema. Numeric fields absent upstream default to zero. Unrecognized
// upstream fields are preserved in ExtraFields keyed by their original
// names; the raw media list is excluded from that bag.
func NormalizeListing(raw models.RawListing) (models.Listing, error) {
	key := stringField(raw, "ListingKey")
	if key == "" {
		return models.Listing{}, ErrMissingKey
	}

	listing := models.Listing{
		ListingKey:        key,
		ListPrice:         floatField(raw, "ListPrice"),
		OriginalListPrice: floatField(raw, "OriginalListPrice"),
		UnparsedAddress:   stringField(raw, "UnparsedAddress"),
		City:              stringField(raw, "City"),
		StateOrProvince:   stringField(raw, "StateOrProvince"),
		PostalCode:        stringField(raw, "PostalCode"),
		Latitude:          floatField(raw, "Latitude"),
		Longitude:         floatField(raw, "Longitude"),
		BedroomsTotal:     intField(raw, "BedroomsTotal"),
		BathroomsTotal:    intField(raw, "BathroomsTotalInteger"),
		LivingArea:        floatField(raw, "LivingArea"),
		LotSizeAcres:      floatField(raw, "LotSizeAcres"),
		YearBuilt:         intField(raw, "YearBuilt"),
		PropertyType:      stringField(raw, "PropertyType"),
		StandardStatus:    stringField(raw, "StandardStatus"),
	}

	extra := make(map[string]interface{})
	for name, value := range raw {
		if modeledFields[name] || name == "Media" {
			continue
		}
		extra[name] = value
	}
	if len(extra) > 0 {
		listing.ExtraFields = extra
	}

	return listing, nil
}

func stringField(raw models.RawListing, name string) string {
	if value, ok := raw[name].(string); ok {
		return value
	}
	return ""
}

// floatField handles the float64 all JSON numbers decode to.
func floatField(raw models.RawListing, name string) float64 {
	switch value := raw[name].(type) {
	case float64:
		return value
	case int:
		return float64(value)
	}
	return 0.0
}

func intField(raw models.RawListing, name string) int {
	switch value := raw[name].(type) {
	case float64:
		return int(value)
	case int:
		return value
	}
	return 0
}
