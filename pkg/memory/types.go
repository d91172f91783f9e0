package memory

import (
	"regexp"
	"strings"
	"time"
)

/*
Memory represents a single unit of stored knowledge. Identifiers are never
reused, content and ownership are immutable after creation, and the only
mutations the store performs are embedding assignment and the archive
transition.
*/
type Memory struct {
	ID             string            `json:"id"`
	Content        string            `json:"content"`
	Type           string            `json:"memory_type"`
	InstanceID     string            `json:"instance_id"`
	Subject        string            `json:"subject,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Embedding      []float32         `json:"-"`
	EmbeddingModel string            `json:"embedding_model,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	ArchivedAt     *time.Time        `json:"archived_at,omitempty"`
}

// Archived reports whether the soft-delete marker has been set.
func (m *Memory) Archived() bool {
	return m.ArchivedAt != nil
}

// EmbeddedWith reports whether the stored vector was produced by the given
// model. A vector tagged with a different model is treated as absent until
// regenerated.
func (m *Memory) EmbeddedWith(model string) bool {
	return len(m.Embedding) > 0 && m.EmbeddingModel == model
}

// EmbeddingText builds the text sent to the embedding service. The type and
// subject prefix the content so they influence semantic matching.
func (m *Memory) EmbeddingText() string {
	parts := []string{"[" + m.Type + "]"}
	if m.Subject != "" {
		parts = append(parts, m.Subject)
	}
	parts = append(parts, m.Content)
	return strings.Join(parts, " ")
}

/*
Edge is a typed, weighted, directional link between two memories. Both
endpoints must reference existing memories; archiving an endpoint keeps the
edge (tombstone, not cascade).
*/
type Edge struct {
	ID            string    `json:"id"`
	SourceID      string    `json:"source_id"`
	TargetID      string    `json:"target_id"`
	Relationship  string    `json:"relationship"`
	Weight        float64   `json:"weight"`
	Bidirectional bool      `json:"bidirectional"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

/*
HandoffMessage is a point-to-point note between two agent instances.
Endpoints and content are immutable; read_at transitions exactly once from
nil to a timestamp.
*/
type HandoffMessage struct {
	ID           string            `json:"id"`
	FromInstance string            `json:"from_instance"`
	ToInstance   string            `json:"to_instance"`
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ReadAt       *time.Time        `json:"read_at,omitempty"`
	ReadBy       string            `json:"read_by,omitempty"`
}

// Read reports whether the message has been marked read.
func (m *HandoffMessage) Read() bool {
	return m.ReadAt != nil
}

// MetadataSchemaVersion tags serialized metadata maps so rigid-schema
// backends can evolve the encoding without guessing.
const MetadataSchemaVersion = 1

// BroadcastInstance addresses a handoff to every instance.
const BroadcastInstance = "all"

// memoryTypes is the built-in vocabulary. Deployments extend it through
// configuration; validation checks the union.
var memoryTypes = map[string]struct{}{
	"fact":         {},
	"decision":     {},
	"architecture": {},
	"gotcha":       {},
	"solution":     {},
	"event":        {},
	"insight":      {},
	"rationale":    {},
	"preference":   {},
	"blocker":      {},
}

// RelationshipTypes documents the standard edge vocabulary. Custom types are
// allowed; these are the ones tooling knows how to render.
var RelationshipTypes = []string{
	"relates_to",
	"caused_by",
	"informed",
	"exemplifies",
	"depends_on",
	"supersedes",
	"derived_from",
	"contradicts",
	"refines",
}

// ValidMemoryType reports whether t is in the built-in vocabulary or the
// extra types supplied by configuration.
func ValidMemoryType(t string, extra []string) bool {
	if _, ok := memoryTypes[t]; ok {
		return true
	}
	for _, e := range extra {
		if t == e {
			return true
		}
	}
	return false
}

// MemoryTypes returns the built-in vocabulary, for help text and tool schemas.
func MemoryTypes() []string {
	out := make([]string, 0, len(memoryTypes))
	for t := range memoryTypes {
		out = append(out, t)
	}
	return out
}

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,49}$`)

// ValidInstanceID reports whether id is a syntactically valid instance
// identifier. Instances register implicitly by appearing in traffic, so this
// is the only gate.
func ValidInstanceID(id string) bool {
	return instanceIDPattern.MatchString(id)
}
