// Package domain holds the typed entities of the scheduling engine:
// schedules, executions, the audit archive and tool policies. Entities are
// explicit structs with explicit schemas; nothing here is a free-form map.
package domain

import (
	"fmt"
	"time"
)

// ScheduleType selects which trigger-spec field of an AgentSchedule is
// authoritative. Exactly one of CronExpr, TimesOfDay or IntervalMinutes is
// consulted, depending on the type; the others are ignored.
type ScheduleType string

const (
	ScheduleTypeCron       ScheduleType = "CRON"
	ScheduleTypeFixedTimes ScheduleType = "FIXED_TIMES"
	ScheduleTypeInterval   ScheduleType = "INTERVAL"
	ScheduleTypeImmediate  ScheduleType = "IMMEDIATE"
)

// ScheduleScope determines whether a schedule applies globally or to a
// single project.
type ScheduleScope string

const (
	ScopeGlobal  ScheduleScope = "GLOBAL"
	ScopeProject ScheduleScope = "PROJECT"
)

// AgentSchedule is a standing rule describing when an agent should run.
type AgentSchedule struct {
	ID              string        `json:"scheduleId"`
	AgentID         string        `json:"agentId"`
	Enabled         bool          `json:"enabled"`
	Timezone        string        `json:"timezone"`
	ScheduleType    ScheduleType  `json:"scheduleType"`
	CronExpr        string        `json:"cronExpr,omitempty"`
	TimesOfDay      []string      `json:"timesOfDay,omitempty"`
	IntervalMinutes int           `json:"intervalMinutes,omitempty"`
	Scope           ScheduleScope `json:"scope"`
	ProjectID       string        `json:"projectId,omitempty"`
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Location resolves the schedule's timezone, defaulting to UTC.
func (s AgentSchedule) Location() (*time.Location, error) {
	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return time.LoadLocation(tz)
}

// Validate checks that the trigger spec matches the schedule type. It is
// called at the API boundary so configuration errors never reach the
// dispatcher.
func (s AgentSchedule) Validate() error {
	if s.AgentID == "" {
		return fmt.Errorf("agentId is required")
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	switch s.ScheduleType {
	case ScheduleTypeCron:
		if s.CronExpr == "" {
			return fmt.Errorf("cronExpr is required for CRON schedules")
		}
	case ScheduleTypeFixedTimes:
		if len(s.TimesOfDay) == 0 {
			return fmt.Errorf("timesOfDay is required for FIXED_TIMES schedules")
		}
		for _, t := range s.TimesOfDay {
			if _, err := time.Parse("15:04", t); err != nil {
				return fmt.Errorf("invalid time of day %q: %w", t, err)
			}
		}
	case ScheduleTypeInterval:
		if s.IntervalMinutes <= 0 {
			return fmt.Errorf("intervalMinutes must be positive for INTERVAL schedules")
		}
	case ScheduleTypeImmediate:
		// No trigger spec; produces exactly one execution at creation time.
	default:
		return fmt.Errorf("unknown scheduleType %q", s.ScheduleType)
	}
	if s.Scope == ScopeProject && s.ProjectID == "" {
		return fmt.Errorf("projectId is required for PROJECT scope")
	}
	return nil
}
