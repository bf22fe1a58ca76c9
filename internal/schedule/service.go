// Package schedule runs the recurring collection-reminder job on a cron
// timetable and persists its definition across restarts.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"zapfacil/internal/campaign"
	"zapfacil/internal/config"
	"zapfacil/internal/connection"
	"zapfacil/internal/contacts"
	"zapfacil/internal/eventbus"
	"zapfacil/pkg/logx"
)

var (
	ErrInvalidTime = errors.New("schedule time must be HH:MM")
	ErrInvalidDays = errors.New("schedule needs at least one weekday")
	ErrMissingFile = errors.New("schedule needs a contact list file")
)

// weekdayOrder fixes the position of each cron weekday code so specs come
// out deterministic regardless of input order.
var weekdayOrder = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// JobConfig is the user-facing definition of the reminder job.
type JobConfig struct {
	Enabled bool
	// Time is the local fire time in HH:MM.
	Time string
	// Days are cron weekday codes (mon, tue, ...).
	Days []string
	// Filepath is the recipient list fed to the campaign.
	Filepath string
	// Message is the reminder text; Attachment is optional.
	Message    string
	Attachment string
}

// Starter launches a campaign run. Satisfied by *campaign.Engine.
type Starter interface {
	Start(ctx context.Context, cfg campaign.Config) error
}

type Service struct {
	settings *config.SettingsStore
	engine   Starter
	monitor  *connection.Monitor
	bus      eventbus.Bus
	log      logx.Logger

	mu      sync.Mutex
	baseCtx context.Context
	c       *cron.Cron
	entry   cron.EntryID
	active  bool
	cfg     JobConfig
}

func New(settings *config.SettingsStore, engine Starter, monitor *connection.Monitor, loc *time.Location, bus eventbus.Bus, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		settings: settings,
		engine:   engine,
		monitor:  monitor,
		bus:      bus,
		log:      log,
		c:        cron.New(cron.WithLocation(loc)),
	}
}

// Start boots the cron runner and restores the persisted job, if any.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.c.Start()

	job := s.Load()
	if err := s.Reschedule(job); err != nil {
		s.log.Warn("persisted schedule is invalid, leaving it disarmed", logx.Err(err))
	}
}

func (s *Service) Stop(ctx context.Context) {
	done := s.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Load reads the persisted job definition from the settings store.
func (s *Service) Load() JobConfig {
	sec := s.settings.Section(config.SectionScheduleCollection)
	job := JobConfig{
		Enabled:    sec["enabled"] == "true",
		Time:       sec["time"],
		Filepath:   sec["filepath"],
		Message:    sec["message"],
		Attachment: sec["attachment"],
	}
	for _, d := range strings.Split(sec["days_of_week"], ",") {
		if d = strings.TrimSpace(d); d != "" {
			job.Days = append(job.Days, d)
		}
	}
	return job
}

// Save validates, persists and (re)arms the job. Nothing is written when
// validation fails, so the store never holds an unarmable definition.
func (s *Service) Save(job JobConfig) error {
	if job.Enabled {
		if _, err := Spec(job.Time, job.Days); err != nil {
			return err
		}
		if strings.TrimSpace(job.Filepath) == "" {
			return ErrMissingFile
		}
	}

	err := s.settings.SetAll(config.SectionScheduleCollection, map[string]string{
		"enabled":      strconv.FormatBool(job.Enabled),
		"time":         job.Time,
		"days_of_week": strings.Join(job.Days, ","),
		"filepath":     job.Filepath,
		"message":      job.Message,
		"attachment":   job.Attachment,
	})
	if err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeScheduleChanged, Data: job})
	}
	return s.Reschedule(job)
}

// Reschedule replaces the live job with the given definition. At most one
// job exists at a time; a disabled definition simply removes it.
func (s *Service) Reschedule(job JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		s.c.Remove(s.entry)
		s.active = false
	}
	if !job.Enabled {
		s.log.Info("collection reminder disabled")
		return nil
	}

	spec, err := Spec(job.Time, job.Days)
	if err != nil {
		return err
	}
	id, err := s.c.AddFunc(spec, s.fire)
	if err != nil {
		s.log.Error("failed to register collection reminder",
			logx.String("spec", spec), logx.Err(err))
		return err
	}
	s.entry = id
	s.active = true
	s.cfg = job
	s.log.Info("collection reminder armed",
		logx.String("time", job.Time),
		logx.String("days", strings.Join(job.Days, ",")))
	return nil
}

// Armed reports whether a job is currently registered.
func (s *Service) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// fire runs on the cron goroutine. Preconditions are re-checked at fire
// time: a missed run is skipped and retried on the next tick, never queued.
func (s *Service) fire() {
	s.mu.Lock()
	job := s.cfg
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if !s.monitor.IsReady(ctx) {
		s.log.Warn("collection reminder skipped: session not connected")
		return
	}
	if _, err := os.Stat(job.Filepath); err != nil {
		s.log.Warn("collection reminder skipped: contact list unavailable",
			logx.String("path", job.Filepath), logx.Err(err))
		return
	}

	s.log.Info("collection reminder fired", logx.String("file", job.Filepath))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeScheduleFired, Data: job.Filepath})
	}

	err := s.engine.Start(ctx, campaign.Config{
		Source:          contacts.FileList,
		Message:         job.Message,
		AttachmentPath:  job.Attachment,
		ContactListPath: job.Filepath,
	})
	if err != nil {
		s.log.Warn("collection reminder could not start", logx.Err(err))
	}
}

// Spec builds the 5-field cron spec "M H * * dow1,dow2" for a daily time
// and weekday set.
func Spec(at string, days []string) (string, error) {
	hh, mm, err := parseHHMM(at)
	if err != nil {
		return "", err
	}
	if len(days) == 0 {
		return "", ErrInvalidDays
	}
	seen := map[string]bool{}
	var codes []string
	for _, d := range days {
		code := strings.ToLower(strings.TrimSpace(d))
		if _, ok := weekdayOrder[code]; !ok {
			return "", fmt.Errorf("%w: unknown weekday %q", ErrInvalidDays, d)
		}
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	sort.Slice(codes, func(i, j int) bool {
		return weekdayOrder[codes[i]] < weekdayOrder[codes[j]]
	})
	return fmt.Sprintf("%d %d * * %s", mm, hh, strings.Join(codes, ",")), nil
}

func parseHHMM(s string) (hh, mm int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hh, err = strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	mm, err = strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return hh, mm, nil
}
