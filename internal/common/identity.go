package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// docpipeNamespace seeds every derived UUID. Changing it would re-key all
// deterministic document and job IDs, so it is fixed for the life of the data.
var docpipeNamespace = uuid.MustParse("e6f9b8a2-41c3-5d87-9f10-6c2b8d74a5e1")

// DocumentIDFor derives a stable document ID from the object location.
// Re-ingesting the same bucket/key always yields the same ID, which is what
// lets duplicate deliveries converge on one job row.
func DocumentIDFor(bucket, key string) uuid.UUID {
	return uuid.NewSHA1(docpipeNamespace, []byte(bucket+"/"+key))
}

// JobIDFor derives a stable job ID from the document ID and the source
// timestamp. A redelivered message carries the same pair and so maps to the
// same job; a genuinely new upload of the same object carries a new
// timestamp and gets a new job.
func JobIDFor(documentID uuid.UUID, sourceTimestamp time.Time) uuid.UUID {
	seed := fmt.Sprintf("%s|%s", documentID, sourceTimestamp.UTC().Format(time.RFC3339))
	return uuid.NewSHA1(docpipeNamespace, []byte(seed))
}

// Artifact key layout. Keyed by document ID so reprocessing overwrites
// rather than accumulates.
func ExtractedKey(documentID uuid.UUID) string {
	return fmt.Sprintf("extracted/%s.json", documentID)
}

func FormattedKey(documentID uuid.UUID) string {
	return fmt.Sprintf("formatted/%s.json", documentID)
}

func ClassifiedKey(documentID uuid.UUID) string {
	return fmt.Sprintf("classified/%s.json", documentID)
}
