// Package planner computes next fire times for agent schedules. It is a pure
// time computation layer: it never touches storage and never creates
// executions. Invalid specs yield "no next time" here; rejecting them is the
// API boundary's job.
package planner

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/goclaw/internal/domain"
)

// NextFireTime returns the next eligible fire time for the schedule strictly
// after ref, or false when the schedule cannot fire again. lastFired is the
// previous fire time, used by INTERVAL schedules; nil means never fired.
func NextFireTime(s domain.AgentSchedule, ref time.Time, lastFired *time.Time) (time.Time, bool) {
	if !s.Enabled {
		return time.Time{}, false
	}

	loc, err := s.Location()
	if err != nil {
		return time.Time{}, false
	}

	switch s.ScheduleType {
	case domain.ScheduleTypeCron:
		return nextCron(s.CronExpr, ref, loc)
	case domain.ScheduleTypeFixedTimes:
		return nextFixedTime(s.TimesOfDay, ref, loc)
	case domain.ScheduleTypeInterval:
		if s.IntervalMinutes <= 0 {
			return time.Time{}, false
		}
		if lastFired == nil {
			return ref, true
		}
		return lastFired.Add(time.Duration(s.IntervalMinutes) * time.Minute), true
	case domain.ScheduleTypeImmediate:
		// One execution at creation time, never re-planned.
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// ValidateCron parses a standard 5-field cron expression. Used by the API to
// reject bad expressions at schedule create/update time.
func ValidateCron(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

func nextCron(expr string, ref time.Time, loc *time.Location) (time.Time, bool) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, false
	}
	// SpecSchedule evaluates in the reference time's location when no
	// explicit CRON_TZ is given, so shift ref into the schedule's timezone.
	next := sched.Next(ref.In(loc))
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

func nextFixedTime(timesOfDay []string, ref time.Time, loc *time.Location) (time.Time, bool) {
	refLocal := ref.In(loc)
	var best time.Time

	for _, tod := range timesOfDay {
		parsed, err := time.Parse("15:04", tod)
		if err != nil {
			continue
		}
		candidate := time.Date(refLocal.Year(), refLocal.Month(), refLocal.Day(),
			parsed.Hour(), parsed.Minute(), 0, 0, loc)
		if !candidate.After(refLocal) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}

	if best.IsZero() {
		return time.Time{}, false
	}
	return best, true
}
