package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func statsKeyPrefix(eventID int) string {
	return fmt.Sprintf("attendance:stats:%d:", eventID)
}

func statsKey(eventID int, groups []string) string {
	suffix := "all"
	if len(groups) > 0 {
		suffix = strings.ToLower(strings.Join(groups, ","))
	}
	return statsKeyPrefix(eventID) + suffix
}

func (svc *service) invalidateStats(ctx context.Context, eventID int) {
	if svc.cache == nil {
		return
	}
	if err := svc.cache.DeletePrefix(ctx, statsKeyPrefix(eventID)); err != nil {
		svc.logger.Warn(fmt.Sprintf("invalidating statistics of event %d: %v", eventID, err), err)
	}
}

func (svc *service) cachedStats(ctx context.Context, key string) (Statistics, bool) {
	if svc.cache == nil {
		return Statistics{}, false
	}
	raw, err := svc.cache.Get(ctx, key)
	if err != nil {
		if errors.Cause(err) != ErrCacheMiss {
			svc.logger.Warn(fmt.Sprintf("reading cached statistics %s: %v", key, err), err)
		}
		return Statistics{}, false
	}
	var stats Statistics
	if err = json.Unmarshal(raw, &stats); err != nil {
		svc.logger.Warn(fmt.Sprintf("decoding cached statistics %s: %v", key, err), err)
		return Statistics{}, false
	}
	return stats, true
}

func (svc *service) cacheStats(ctx context.Context, key string, stats Statistics) {
	if svc.cache == nil || svc.conf.StatsCacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(stats)
	if err == nil {
		err = svc.cache.Set(ctx, key, raw, svc.conf.StatsCacheTTL)
	}
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("caching statistics %s: %v", key, err), err)
	}
}

// Statistics returns the attendance figures of the event, restricted to the given contest groups when any.
func (svc *service) Statistics(ctx context.Context, eventID int, groups []string) (Statistics, error) {
	if _, err := svc.events.Get(ctx, eventID); err != nil {
		return Statistics{}, err
	}

	key := statsKey(eventID, groups)
	if stats, ok := svc.cachedStats(ctx, key); ok {
		return stats, nil
	}

	var stats Statistics
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.Stats, err = svc.reports.Counts(gctx, eventID, groups)
		return errors.Wrap(err, "counting attendance")
	})
	g.Go(func() (err error) {
		stats.StateStats, err = svc.reports.StateStats(gctx, eventID, groups)
		return errors.Wrap(err, "loading state statistics")
	})
	g.Go(func() (err error) {
		stats.DailyAttendance, err = svc.reports.DailyAttendance(gctx, eventID, groups)
		return errors.Wrap(err, "loading daily attendance")
	})
	g.Go(func() (err error) {
		stats.HourlyAttendance, err = svc.reports.HourlyAttendance(gctx, eventID, groups)
		return errors.Wrap(err, "loading hourly attendance")
	})
	if err := g.Wait(); err != nil {
		return Statistics{}, err
	}

	stats.Stats.complete()
	for i := range stats.StateStats {
		stats.StateStats[i].complete()
	}
	if stats.StateStats == nil {
		stats.StateStats = []StateStats{}
	}
	if stats.DailyAttendance == nil {
		stats.DailyAttendance = []DailyCount{}
	}
	if stats.HourlyAttendance == nil {
		stats.HourlyAttendance = []HourlyCount{}
	}

	svc.cacheStats(ctx, key, stats)
	return stats, nil
}
