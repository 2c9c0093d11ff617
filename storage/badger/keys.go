package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/enrich/core"
)

// Key prefixes for different data types
const (
	recordPrefix     = "ingrec:"
	recordTagsPrefix = "ingtag:"
	queuePrefix      = "ingque:"
	recordIDSeq      = "seq:ingrec"
	blobPrefix       = "blob:"
	vectorCollPrefix = "veccol:"
	vectorObjPrefix  = "vecobj:"
)

// makeIDKey builds prefix + big-endian id so keys sort by ID.
func makeIDKey(prefix string, id core.ID) []byte {
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeRecordKey generates a key for an ingestion record by ID.
func makeRecordKey(id core.ID) []byte {
	return makeIDKey(recordPrefix, id)
}

// makeRecordTagsKey generates a key for the smart tag set of a record.
func makeRecordTagsKey(id core.ID) []byte {
	return makeIDKey(recordTagsPrefix, id)
}

// makeQueueKey generates a key for the extraction queue entry of a record.
func makeQueueKey(id core.ID) []byte {
	return makeIDKey(queuePrefix, id)
}

// idFromKey extracts the ID suffix of a key built by makeIDKey.
func idFromKey(prefix string, key []byte) (core.ID, bool) {
	if len(key) != len(prefix)+8 {
		return 0, false
	}
	return core.ID(binary.BigEndian.Uint64(key[len(prefix):])), true
}

// makeBlobKey generates a key for blob bytes stored under a path.
func makeBlobKey(path string) []byte {
	return []byte(blobPrefix + path)
}

// makeCollectionKey generates a key for vector collection metadata.
func makeCollectionKey(name string) []byte {
	return []byte(vectorCollPrefix + name)
}

// makePartialVectorKey generates the prefix shared by all objects of a collection.
// Format: prefix:collection:
func makePartialVectorKey(collection string) []byte {
	return []byte(fmt.Sprintf("%s%s:", vectorObjPrefix, collection))
}

// makeVectorKey generates a key for a vector object.
// Format: prefix:collection:id
func makeVectorKey(collection, id string) []byte {
	return append(makePartialVectorKey(collection), id...)
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(fmt.Sprintf("%s:chkpt", processorType))
}
