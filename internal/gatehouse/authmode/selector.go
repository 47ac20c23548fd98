package authmode

import "github.com/gatehouse-io/gatehouse/internal/gatehouse/types"

// Mode is where credential verification happens for an event.
type Mode string

const (
	// ModeEdge: the device already matched a locally cached template and
	// reports only the resolved subject; the backend records the outcome.
	ModeEdge Mode = "edge"

	// ModeBackend: the backend must authoritatively verify. Required for
	// temporary credentials, whose edge caches would otherwise be stale
	// or exploitable past expiry.
	ModeBackend Mode = "backend"
)

// SelectMode chooses the verification mode for a subject category.
// Temporary subjects always verify backend; recurring subjects may use
// edge verification. An empty category is treated as temporary — the
// conservative choice for an unclassified subject.
func SelectMode(category types.SubjectCategory) Mode {
	if category == types.SubjectRecurring {
		return ModeEdge
	}
	return ModeBackend
}
