package vectorstore

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/poiesic/enrich/core"
)

// ObjectID returns the deterministic vector object id for a record.
// Re-uploading the same record overwrites the same object.
func ObjectID(recordID core.ID) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("enrich:record:"+strconv.FormatUint(uint64(recordID), 10))).String()
}

// NewObjectID returns a random object id for objects with no backing record.
func NewObjectID() string {
	return uuid.NewString()
}
