package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ReminderSource lists appointments that still need a reminder and records
// that one went out.
type ReminderSource interface {
	DueReminders(ctx context.Context, from, to time.Time) ([]AppointmentNotice, error)
	MarkReminderSent(ctx context.Context, appointmentID uuid.UUID, at time.Time) error
}

// Reminder is the delivery side of the job.
type Reminder interface {
	Remind(ctx context.Context, notice AppointmentNotice) error
}

// ReminderSummary reports one pass of the job.
type ReminderSummary struct {
	Due          int `json:"due"`
	Sent         int `json:"sent"`
	Deduplicated int `json:"deduplicated"`
	Failed       int `json:"failed"`
}

// sentSet holds the patient+day keys already reminded during one run. A
// patient with several appointments on one day gets a single message.
type sentSet map[string]struct{}

func reminderKey(n AppointmentNotice, loc *time.Location) string {
	return n.PatientID.String() + "/" + n.Start.In(loc).Format(time.DateOnly)
}

type ReminderJob struct {
	source   ReminderSource
	reminder Reminder
	lead     time.Duration
	loc      *time.Location
	logger   zerolog.Logger
	now      func() time.Time
}

func NewReminderJob(source ReminderSource, reminder Reminder, lead time.Duration, loc *time.Location, logger zerolog.Logger) *ReminderJob {
	if loc == nil {
		loc = time.UTC
	}
	return &ReminderJob{
		source:   source,
		reminder: reminder,
		lead:     lead,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (j *ReminderJob) WithClock(now func() time.Time) *ReminderJob {
	j.now = now
	return j
}

// Run reminds every appointment starting within the lead window that has not
// been reminded yet. A failed send leaves the appointment unmarked so the next
// run retries it.
func (j *ReminderJob) Run(ctx context.Context) (ReminderSummary, error) {
	from := j.now()
	due, err := j.source.DueReminders(ctx, from, from.Add(j.lead))
	if err != nil {
		return ReminderSummary{}, fmt.Errorf("list due reminders: %w", err)
	}
	return j.send(ctx, due, make(sentSet))
}

func (j *ReminderJob) send(ctx context.Context, due []AppointmentNotice, sent sentSet) (ReminderSummary, error) {
	sum := ReminderSummary{Due: len(due)}
	for _, n := range due {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		key := reminderKey(n, j.loc)
		if _, ok := sent[key]; ok {
			sum.Deduplicated++
		} else {
			if err := j.reminder.Remind(ctx, n); err != nil {
				sum.Failed++
				j.logger.Warn().Err(err).Str("appointment_id", n.AppointmentID.String()).Msg("reminder failed")
				continue
			}
			sent[key] = struct{}{}
			sum.Sent++
		}

		// Covered appointments are marked too so a later run does not remind
		// the patient again for the same day.
		if err := j.source.MarkReminderSent(ctx, n.AppointmentID, j.now()); err != nil {
			return sum, fmt.Errorf("mark reminder sent for %s: %w", n.AppointmentID, err)
		}
	}

	j.logger.Info().
		Int("due", sum.Due).
		Int("sent", sum.Sent).
		Int("deduplicated", sum.Deduplicated).
		Int("failed", sum.Failed).
		Msg("reminder run complete")
	return sum, nil
}

// Schedule registers the job on c under the cron spec. Overlapping runs are
// skipped; each run is bounded by timeout.
func (j *ReminderJob) Schedule(c *cron.Cron, spec string, timeout time.Duration) (cron.EntryID, error) {
	job := cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := j.Run(ctx); err != nil {
			j.logger.Error().Err(err).Msg("reminder run failed")
		}
	})
	id, err := c.AddJob(spec, cron.NewChain(cron.SkipIfStillRunning(cronLogger{j.logger})).Then(job))
	if err != nil {
		return 0, fmt.Errorf("schedule reminders %q: %w", spec, err)
	}
	return id, nil
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
