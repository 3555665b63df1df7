package redis

import "fmt"

// Key layout shared by every component that talks to Redis.
const (
	AnalyticsEventsKey = "analytics:events"
	rateLimitPrefix    = "ratelimit:"
)

func SessionKey(code string) string {
	return fmt.Sprintf("session:%s", code)
}

func RateLimitKey(id string) string {
	return rateLimitPrefix + id
}

// AnalyticsDailyKey is the per-day counter for metric, date formatted as 2006-01-02.
func AnalyticsDailyKey(date, metric string) string {
	return fmt.Sprintf("analytics:daily:%s:%s", date, metric)
}

func AnalyticsTotalKey(metric string) string {
	return fmt.Sprintf("analytics:total:%s", metric)
}
