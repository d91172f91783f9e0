package stores

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataCodec(t *testing.T) {
	raw, err := EncodeMetadata(map[string]string{"source": "runbook", "page": "12"})
	assert.NoError(t, err)
	assert.Contains(t, raw, `"v":1`)

	meta, err := DecodeMetadata(raw)
	assert.NoError(t, err)
	assert.Equal(t, "runbook", meta["source"])
	assert.Equal(t, "12", meta["page"])

	// Empty maps round-trip through the NULL-friendly empty string.
	raw, err = EncodeMetadata(nil)
	assert.NoError(t, err)
	assert.Empty(t, raw)

	meta, err = DecodeMetadata("")
	assert.NoError(t, err)
	assert.Nil(t, meta)

	_, err = DecodeMetadata("{not json")
	assert.Error(t, err)
}

func TestVectorCodec(t *testing.T) {
	raw, err := EncodeVector([]float32{0.25, -1, 0})
	assert.NoError(t, err)

	vec, err := DecodeVector(raw)
	assert.NoError(t, err)
	assert.Equal(t, []float32{0.25, -1, 0}, vec)

	raw, err = EncodeVector(nil)
	assert.NoError(t, err)
	assert.Empty(t, raw)

	vec, err = DecodeVector("")
	assert.NoError(t, err)
	assert.Nil(t, vec)
}
