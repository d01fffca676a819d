package cache

import (
	"fmt"
	"time"
)

func ResultKey(productID string) string {
	return fmt.Sprintf("analysis:result:%s", productID)
}

func StatusKey(productID string) string {
	return fmt.Sprintf("analysis:status:%s", productID)
}

func TaskKey(taskID string) string {
	return fmt.Sprintf("analysis:task:%s", taskID)
}

func StartLockKey(productID string) string {
	return fmt.Sprintf("analysis:lock:%s", productID)
}

func RateLimitKey(clientKey string) string {
	return fmt.Sprintf("ratelimit:%s", clientKey)
}

// HitCounterKey and MissCounterKey are keyed by calendar day (UTC).
func HitCounterKey(day time.Time) string {
	return fmt.Sprintf("analysis:hits:%s", day.UTC().Format("2006-01-02"))
}

func MissCounterKey(day time.Time) string {
	return fmt.Sprintf("analysis:misses:%s", day.UTC().Format("2006-01-02"))
}
