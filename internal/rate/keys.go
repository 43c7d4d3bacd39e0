package rate

// Bucket names one independently configured limit.
type Bucket string

const (
	BucketLogin   Bucket = "login"
	BucketRefresh Bucket = "refresh"
	BucketGlobal  Bucket = "global"
)

// IPKey returns the counter key for bucket keyed by client IP.
func IPKey(bucket Bucket, ip string) string {
	return string(bucket) + ":ip:" + ip
}

// UserKey returns the counter key for bucket keyed by user id.
func UserKey(bucket Bucket, userID string) string {
	return string(bucket) + ":user:" + userID
}
