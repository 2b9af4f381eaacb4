package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yuto-kimura/salonbook/libs/db"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/availability"
)

// CachedSlot and CachedDay are the wire shape of the calendar projection
// stored in Redis and served to read-only callers. Display only: conflict
// detection always goes through the availability calculator.
type CachedSlot struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Status string `json:"status"`
}

type CachedDay struct {
	Date  string       `json:"date"`
	Slots []CachedSlot `json:"slots"`
}

func CacheKey(providerID string, day time.Time) string {
	return fmt.Sprintf("calendar:v1:provider:%s:%s", providerID, day.Format("2006-01-02"))
}

// Sync recomputes the cached calendar projection after shift or reservation
// mutations. Failures never propagate to the mutation that triggered them;
// the affected days are marked dirty and retried out of band.
type Sync struct {
	pool   *db.Pool
	calc   *availability.Calculator
	rdb    *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

func NewSync(pool *db.Pool, calc *availability.Calculator, rdb *redis.Client, logger *slog.Logger, ttl time.Duration) *Sync {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sync{pool: pool, calc: calc, rdb: rdb, logger: logger, ttl: ttl}
}

// Recompute refreshes the projection for the given provider and days.
// Call after the mutating transaction commits; the cache must never be
// rebuilt from uncommitted state.
func (s *Sync) Recompute(ctx context.Context, providerID, venueID string, days ...time.Time) {
	for _, day := range dedupeDays(days) {
		if err := s.recomputeDay(ctx, providerID, day); err != nil {
			s.logger.Warn("calendar recompute failed; marking dirty",
				"err", err, "provider_id", providerID, "date", day.Format("2006-01-02"))
			s.markDirty(ctx, providerID, venueID, day)
		}
	}
}

func (s *Sync) recomputeDay(ctx context.Context, providerID string, day time.Time) error {
	days, err := s.calc.FreeSlots(ctx, s.pool, providerID, day, day)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		return nil
	}
	raw, err := json.Marshal(toCachedDay(days[0]))
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, CacheKey(providerID, day), raw, s.ttl).Err()
}

func (s *Sync) markDirty(ctx context.Context, providerID, venueID string, day time.Time) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calendar_dirty (provider_id, venue_id, day)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_id, day) DO UPDATE SET marked_at = now()
	`, providerID, venueID, day)
	if err != nil {
		s.logger.Error("calendar dirty marker insert failed", "err", err, "provider_id", providerID)
	}
}

// RunRetry periodically retries dirty days until the cache write succeeds.
func (s *Sync) RunRetry(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.retryDirty(ctx); err != nil {
				s.logger.Error("calendar dirty retry failed", "err", err)
			}
		}
	}
}

func (s *Sync) retryDirty(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `
		SELECT provider_id::text, venue_id::text, day
		FROM calendar_dirty
		ORDER BY marked_at
		LIMIT 100
	`)
	if err != nil {
		return err
	}
	type dirty struct {
		providerID string
		venueID    string
		day        time.Time
	}
	var pending []dirty
	for rows.Next() {
		var d dirty
		if err := rows.Scan(&d.providerID, &d.venueID, &d.day); err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range pending {
		if err := s.recomputeDay(ctx, d.providerID, d.day.UTC()); err != nil {
			s.logger.Warn("calendar dirty day still failing", "err", err, "provider_id", d.providerID)
			continue
		}
		if _, err := s.pool.Exec(ctx, `
			DELETE FROM calendar_dirty
			WHERE provider_id = $1 AND day = $2
		`, d.providerID, d.day); err != nil {
			return err
		}
	}
	return nil
}

// CachedDays reads the projection for [dateFrom, dateTo]. The boolean is
// false when any day is missing from the cache; callers then fall back to a
// live computation.
func (s *Sync) CachedDays(ctx context.Context, providerID string, dateFrom, dateTo time.Time) ([]CachedDay, bool) {
	var keys []string
	for d := dateFrom; !d.After(dateTo); d = d.AddDate(0, 0, 1) {
		keys = append(keys, CacheKey(providerID, d))
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, false
	}
	out := make([]CachedDay, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			return nil, false
		}
		var day CachedDay
		if err := json.Unmarshal([]byte(raw), &day); err != nil {
			return nil, false
		}
		out = append(out, day)
	}
	return out, true
}

func ToCachedDays(days []availability.DaySlots) []CachedDay {
	out := make([]CachedDay, 0, len(days))
	for _, d := range days {
		out = append(out, toCachedDay(d))
	}
	return out
}

func toCachedDay(d availability.DaySlots) CachedDay {
	day := CachedDay{Date: d.Date.Format("2006-01-02"), Slots: []CachedSlot{}}
	for _, s := range d.Slots {
		day.Slots = append(day.Slots, CachedSlot{
			Start:  s.Start.UTC().Format(time.RFC3339),
			End:    s.End.UTC().Format(time.RFC3339),
			Status: s.Status,
		})
	}
	return day
}

func dedupeDays(days []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(days))
	var out []time.Time
	for _, d := range days {
		d = d.UTC().Truncate(24 * time.Hour)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
