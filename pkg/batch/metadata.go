package batch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// metadataPrefix tags a custom_id as carrying JSON-encoded request metadata.
// The provider echoes the custom_id back verbatim on the matching output
// line, which is the only channel batch requests have for round-tripping
// per-request context.
const metadataPrefix = "gr_meta::"

// Request kinds carried in Metadata.Type.
const (
	KindGeneration = "uc_generation"
	KindDifficulty = "difficulty_assessment"
)

// Metadata is the per-request context smuggled through the provider inside
// the custom_id. Which fields are set depends on Type: generation requests
// carry OriginID, difficulty requests carry the comparison-group fields.
type Metadata struct {
	Type              string `json:"type"`
	RunID             string `json:"run_id"`
	OriginID          string `json:"origin_id,omitempty"`
	ComparisonGroupID string `json:"comparison_group_id,omitempty"`
	BloomLevel        string `json:"bloom_level,omitempty"`
	CoherenceLevel    string `json:"coherence_level,omitempty"`

	// Raw holds the original custom_id when it was not metadata-encoded.
	Raw string `json:"-"`
}

// EncodeCustomID serializes the metadata into a provider custom_id.
func EncodeCustomID(m Metadata) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode request metadata: %w", err)
	}
	return metadataPrefix + string(data), nil
}

// DecodeCustomID recovers request metadata from a provider custom_id. A
// custom_id without the metadata prefix is not an error; the id is preserved
// in Raw so callers can still correlate the line.
func DecodeCustomID(customID string) (Metadata, error) {
	if !strings.HasPrefix(customID, metadataPrefix) {
		return Metadata{Raw: customID}, nil
	}

	var m Metadata
	payload := customID[len(metadataPrefix):]
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return Metadata{Raw: customID}, fmt.Errorf("failed to decode request metadata from custom_id %q: %w", customID, err)
	}
	m.Raw = customID
	return m, nil
}
