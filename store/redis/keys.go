package redis

// Redis key naming conventions for queue data. The braces form a hash tag
// so every key maps to the same cluster slot.
const keyPrefix = "{intake}:"

// jobKeyPrefix prefixes job Hashes: {intake}:job:{id}
const jobKeyPrefix = keyPrefix + "job:"

// jobKey returns the key for a job Hash.
func jobKey(id string) string { return jobKeyPrefix + id }

const (
	// seqKey is the counter that assigns job sequence numbers.
	seqKey = keyPrefix + "seq"
	// readyKey holds claimable jobs scored by available_at (ms).
	readyKey = keyPrefix + "ready"
	// activeKey holds claimed jobs scored by lease expiry (ms).
	activeKey = keyPrefix + "active"
	// deadKey holds dead jobs scored by time of death (ms).
	deadKey = keyPrefix + "dead"
)
