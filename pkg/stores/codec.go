package stores

import (
	"encoding/json"
	"fmt"

	"github.com/engramdb/engram/pkg/memory"
)

// metadataEnvelope versions the serialized metadata map so backends with
// rigid schemas can evolve the encoding.
type metadataEnvelope struct {
	Version int               `json:"v"`
	Data    map[string]string `json:"data,omitempty"`
}

// EncodeMetadata serializes a metadata map into its versioned JSON envelope.
// An empty map encodes to "" so backends can store NULL.
func EncodeMetadata(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	b, err := json.Marshal(metadataEnvelope{Version: memory.MetadataSchemaVersion, Data: meta})
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// DecodeMetadata reverses EncodeMetadata. Unknown envelope versions decode
// to their data map unchanged; the version gate exists for future encodings.
func DecodeMetadata(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var env metadataEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return env.Data, nil
}

// EncodeVector serializes an embedding for backends without a native vector
// type. Empty vectors encode to "".
func EncodeVector(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", nil
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("encode vector: %w", err)
	}
	return string(b), nil
}

// DecodeVector reverses EncodeVector.
func DecodeVector(raw string) ([]float32, error) {
	if raw == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return vec, nil
}
