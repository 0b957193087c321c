package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"

	"market-feed/internal/domain"
)

// ComputeEventID computes a deterministic event_id for a sequenced fact.
// Formula: SHA256(venue|topic|sequence)
// Returns base58-encoded hash.
func ComputeEventID(venue domain.VenueKey, topic string, sequence uint64) string {
	data := fmt.Sprintf("%s|%s|%d", venue.String(), topic, sequence)
	return encode(data)
}

// ComputeBarID computes a deterministic event_id for a closed bar.
// Formula: SHA256(venue|resolution|bucket_start)
// Returns base58-encoded hash.
func ComputeBarID(venue domain.VenueKey, res domain.Resolution, bucketStart int64) string {
	data := fmt.Sprintf("%s|%s|%d", venue.String(), string(res), bucketStart)
	return encode(data)
}

// ComputeSnapshotID computes an event_id for an order book snapshot.
// Snapshots carry no sequence, so observation time is used.
// Formula: SHA256(venue|topic|time)
func ComputeSnapshotID(venue domain.VenueKey, topic string, observedAt int64) string {
	data := fmt.Sprintf("%s|%s|t%d", venue.String(), topic, observedAt)
	return encode(data)
}

func encode(data string) string {
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
