package pkg

// Topics used on the addressed-messaging network.
const (
	TOPIC_BROADCAST = "rmd.message"
	TOPIC_ACK       = "rmd.ack"
)

// Names of the collaborative sets every replica registers.
const (
	SHARED_SET = "sharedSet"
)

// Buckets of the result/workload store.
const (
	BUCKET_RESULTS      = "results"
	BUCKET_MEASUREMENTS = "measurements"
)
