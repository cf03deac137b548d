package scheduler

import (
	"context"
	"math/rand"

	"github.com/keshon/ghostline/internal/ghost"
)

// Default recurring jobs registered on every Start. Ids are stable, so a
// restart replaces rather than duplicates them.
const (
	jobMidnightShift = "midnight_shift"
	jobWitchingHour  = "witching_hour"
	jobDaytimeNudge  = "daytime_nudge"
	jobEveningSurge  = "evening_surge"
	jobWeeklyReset   = "weekly_reset"
)

func (s *Scheduler) registerDefaultJobs() {
	jobs := []struct {
		id     string
		name   string
		expr   string
		action Action
	}{
		{
			id:   jobMidnightShift,
			name: "midnight mode shift",
			expr: "0 0 * * *",
			action: func(ctx context.Context) error {
				_, err := s.machine.TransitionMode(ghost.ModeTrickster, "midnight crossed")
				return err
			},
		},
		{
			id:   jobWitchingHour,
			name: "witching hour",
			expr: "0 3 * * *",
			action: func(ctx context.Context) error {
				if _, err := s.machine.TransitionMode(ghost.ModeDemon, "the witching hour"); err != nil {
					return err
				}
				_, err := s.machine.UpdateIntensity(15)
				return err
			},
		},
		{
			// Daylight keeps the ghost subdued: a random calmer mode every
			// few hours during the day.
			id:   jobDaytimeNudge,
			name: "daytime mode nudge",
			expr: "0 9-17/4 * * *",
			action: func(ctx context.Context) error {
				calm := []ghost.Mode{ghost.ModeWhisperer, ghost.ModeTrickster}
				mode := calm[rand.Intn(len(calm))]
				_, err := s.machine.TransitionMode(mode, "daylight keeps it quiet")
				return err
			},
		},
		{
			id:   jobEveningSurge,
			name: "evening intensity surge",
			expr: "0 20 * * *",
			action: func(ctx context.Context) error {
				if _, err := s.machine.UpdateIntensity(10); err != nil {
					return err
				}
				_, err := s.machine.RecordIntervention(ghost.TriggerTime, map[string]string{
					"job": jobEveningSurge,
				})
				return err
			},
		},
		{
			id:   jobWeeklyReset,
			name: "weekly full reset",
			expr: "0 5 * * 1",
			action: func(ctx context.Context) error {
				_, err := s.machine.Reset()
				return err
			},
		},
	}

	for _, j := range jobs {
		if err := s.ScheduleEvent(j.id, j.name, j.expr, j.action); err != nil {
			// Expressions above are constants; this only trips during development.
			s.log.Error().Err(err).Str("event_id", j.id).Msg("failed to register default job")
		}
	}
}
