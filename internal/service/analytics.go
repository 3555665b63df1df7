package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/beaconmeet/relay-server-go/internal/clock"
	appredis "github.com/beaconmeet/relay-server-go/internal/redis"
)

const (
	EventSessionCreated   = "session_created"
	EventSessionJoined    = "session_joined"
	EventSessionCompleted = "session_completed"

	metricSessions    = "sessions"
	metricJoins       = "joins"
	metricCompletions = "completions"

	dailyCounterTTL   = 90 * 24 * time.Hour
	recentEventWindow = 24 * time.Hour
	statsDays         = 7

	DefaultEventLimit = 100

	spikeMultiplier    = 5
	hourlySessionLimit = 10
	anomalyEventSample = 50
)

// EventRecorder receives session lifecycle events. Recording is best effort:
// callers log failures and carry on.
type EventRecorder interface {
	SessionCreated(ctx context.Context, code, driverName string) error
	SessionJoined(ctx context.Context, code string) error
	SessionCompleted(ctx context.Context, code string) error
}

type AnalyticsEvent struct {
	Type       string `json:"type"`
	Code       string `json:"code"`
	DriverName string `json:"driverName,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Date       string `json:"date"`
}

type Counts struct {
	Sessions    int64 `json:"sessions"`
	Joins       int64 `json:"joins"`
	Completions int64 `json:"completions"`
}

type DailyCounts struct {
	Date string `json:"date"`
	Counts
}

type Stats struct {
	Total     Counts        `json:"total"`
	Today     Counts        `json:"today"`
	Last7Days []DailyCounts `json:"last7Days"`
}

type AnomalyReport struct {
	SuspiciousActivity bool           `json:"suspiciousActivity"`
	Reason             string         `json:"reason,omitempty"`
	Details            map[string]any `json:"details,omitempty"`
}

// AnalyticsService keeps usage counters and a rolling event log in Redis.
type AnalyticsService struct {
	client *redis.Client
	clock  clock.Clock
}

func NewAnalyticsService(client *redis.Client, clk clock.Clock) *AnalyticsService {
	return &AnalyticsService{client: client, clock: clk}
}

func (s *AnalyticsService) SessionCreated(ctx context.Context, code, driverName string) error {
	return s.record(ctx, AnalyticsEvent{Type: EventSessionCreated, Code: code, DriverName: driverName}, metricSessions)
}

func (s *AnalyticsService) SessionJoined(ctx context.Context, code string) error {
	return s.record(ctx, AnalyticsEvent{Type: EventSessionJoined, Code: code}, metricJoins)
}

func (s *AnalyticsService) SessionCompleted(ctx context.Context, code string) error {
	return s.record(ctx, AnalyticsEvent{Type: EventSessionCompleted, Code: code}, metricCompletions)
}

func (s *AnalyticsService) record(ctx context.Context, event AnalyticsEvent, metric string) error {
	now := s.clock.Now().UTC()
	event.Timestamp = now.UnixMilli()
	event.Date = dateKey(now)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	dailyKey := appredis.AnalyticsDailyKey(event.Date, metric)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, appredis.AnalyticsEventsKey, redis.Z{Score: float64(event.Timestamp), Member: data})
		pipe.Incr(ctx, dailyKey)
		pipe.Expire(ctx, dailyKey, dailyCounterTTL)
		pipe.Incr(ctx, appredis.AnalyticsTotalKey(metric))
		return nil
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", event.Type, err)
	}
	return nil
}

func (s *AnalyticsService) GetStats(ctx context.Context) (*Stats, error) {
	now := s.clock.Now().UTC()

	total, err := s.counts(ctx, appredis.AnalyticsTotalKey)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: total, Last7Days: make([]DailyCounts, 0, statsDays)}
	for i := 0; i < statsDays; i++ {
		date := dateKey(now.AddDate(0, 0, -i))
		day, err := s.counts(ctx, func(metric string) string {
			return appredis.AnalyticsDailyKey(date, metric)
		})
		if err != nil {
			return nil, err
		}
		if i == 0 {
			stats.Today = day
		}
		stats.Last7Days = append(stats.Last7Days, DailyCounts{Date: date, Counts: day})
	}
	return stats, nil
}

func (s *AnalyticsService) counts(ctx context.Context, key func(metric string) string) (Counts, error) {
	values, err := s.client.MGet(ctx, key(metricSessions), key(metricJoins), key(metricCompletions)).Result()
	if err != nil {
		return Counts{}, fmt.Errorf("read counters: %w", err)
	}
	return Counts{
		Sessions:    parseCounter(values[0]),
		Joins:       parseCounter(values[1]),
		Completions: parseCounter(values[2]),
	}, nil
}

// GetRecentEvents returns up to limit events from the last 24 hours, newest first.
func (s *AnalyticsService) GetRecentEvents(ctx context.Context, limit int) ([]AnalyticsEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	now := s.clock.Now()
	since := now.Add(-recentEventWindow)

	raw, err := s.client.ZRevRangeByScore(ctx, appredis.AnalyticsEventsKey, &redis.ZRangeBy{
		Min:   strconv.FormatInt(since.UnixMilli(), 10),
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	events := make([]AnalyticsEvent, 0, len(raw))
	for _, item := range raw {
		var event AnalyticsEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			log.Warn().Err(err).Msg("skipping malformed analytics event")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// DetectAnomalies flags a daily spike over five times the previous six-day
// average, or more than ten sessions created in the last hour.
func (s *AnalyticsService) DetectAnomalies(ctx context.Context) (*AnomalyReport, error) {
	stats, err := s.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	var previous int64
	for _, day := range stats.Last7Days[1:] {
		previous += day.Sessions
	}
	avg := float64(previous) / float64(len(stats.Last7Days)-1)
	today := stats.Today.Sessions

	if avg > 0 && float64(today) > avg*spikeMultiplier {
		return &AnomalyReport{
			SuspiciousActivity: true,
			Reason:             "Unusual spike in session creation",
			Details: map[string]any{
				"todaySessions":    today,
				"averageLast7Days": math.Round(avg),
				"increaseMultiple": math.Round(float64(today) / avg),
			},
		}, nil
	}

	events, err := s.GetRecentEvents(ctx, anomalyEventSample)
	if err != nil {
		return nil, err
	}

	hourAgo := s.clock.Now().Add(-time.Hour).UnixMilli()
	lastHour := 0
	for _, event := range events {
		if event.Type == EventSessionCreated && event.Timestamp > hourAgo {
			lastHour++
		}
	}

	if lastHour > hourlySessionLimit {
		return &AnomalyReport{
			SuspiciousActivity: true,
			Reason:             "High session creation rate",
			Details: map[string]any{
				"sessionsLastHour": lastHour,
				"threshold":        hourlySessionLimit,
			},
		}, nil
	}

	return &AnomalyReport{SuspiciousActivity: false}, nil
}

// TrimEvents drops events older than retention and returns how many were removed.
func (s *AnalyticsService) TrimEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-retention).UnixMilli()
	removed, err := s.client.ZRemRangeByScore(ctx, appredis.AnalyticsEventsKey, "-inf", "("+strconv.FormatInt(cutoff, 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("trim events: %w", err)
	}
	return removed, nil
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func parseCounter(v any) int64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var _ EventRecorder = (*AnalyticsService)(nil)
