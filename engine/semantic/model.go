package semantic

import "github.com/google/uuid"

// SearchResult represents a single vector search hit.
type SearchResult struct {
	PartNumber  string            `json:"part_number"`
	Description string            `json:"description"`
	Score       float32           `json:"score"`
	Meta        map[string]string `json:"meta"`
}

// VectorRecord represents a single vector to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // part_number, description, category, brand, attributes
}

// pointNamespace seeds the deterministic UUIDs used as Qdrant point IDs.
var pointNamespace = uuid.MustParse("7a8f1c52-0d7e-4c2a-9b64-3f0a5f4e9d21")

// PointID derives a stable Qdrant point UUID from a part number, so
// re-ingesting the same part overwrites its existing point.
func PointID(partNumber string) string {
	return uuid.NewSHA1(pointNamespace, []byte(partNumber)).String()
}
