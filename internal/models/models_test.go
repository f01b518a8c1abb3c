package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mongodb.org/mongo-driver/bson"
)

// A listing whose extras all disappeared upstream must still marshal the
// extra_fields key, otherwise the upsert $set leaves the stale bag in place.
func TestListing_EmptyExtraFieldsMarshalsIntoUpsertDocument(t *testing.T) {
	data, err := bson.Marshal(Listing{ListingKey: "A1", ExtraFields: nil})
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(data, &doc))

	_, ok := doc["extra_fields"]
	assert.True(t, ok, "extra_fields must be written even when empty")
}

func TestListing_IsActive(t *testing.T) {
	active := Listing{StandardStatus: StatusActive}
	assert.True(t, active.IsActive())

	for _, status := range []string{"Closed", "Pending", "Withdrawn", ""} {
		inactive := Listing{StandardStatus: status}
		assert.False(t, inactive.IsActive(), status)
	}
}
