package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"zapfacil/internal/campaign"
	"zapfacil/internal/config"
	"zapfacil/internal/connection"
	"zapfacil/internal/contacts"
	"zapfacil/pkg/logx"
)

type stubDriver struct{ ready bool }

func (d *stubDriver) IsReady(context.Context) bool               { return d.ready }
func (d *stubDriver) HasQRPrompt(context.Context) bool           { return false }
func (d *stubDriver) OpenDirectChat(context.Context, string) error { return nil }
func (d *stubDriver) OpenChatByTitle(context.Context, string) error { return nil }
func (d *stubDriver) OpenChatTitle(context.Context) string       { return "" }
func (d *stubDriver) SendText(context.Context, string) error     { return nil }
func (d *stubDriver) AttachFile(context.Context, string) error   { return nil }

type recordingStarter struct {
	mu   sync.Mutex
	cfgs []campaign.Config
}

func (r *recordingStarter) Start(_ context.Context, cfg campaign.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfgs = append(r.cfgs, cfg)
	return nil
}

func (r *recordingStarter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cfgs)
}

func newService(t *testing.T, ready bool) (*Service, *recordingStarter, *config.SettingsStore) {
	t.Helper()
	settings, err := config.OpenSettings(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatalf("OpenSettings: %v", err)
	}
	starter := &recordingStarter{}
	mon := connection.NewMonitor(connection.Config{
		Attempts: 1, Wait: time.Millisecond, ProbeTimeout: 100 * time.Millisecond,
	}, &stubDriver{ready: ready}, nil, logx.Nop())
	svc := New(settings, starter, mon, time.UTC, nil, logx.Nop())
	return svc, starter, settings
}

func TestSpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		at      string
		days    []string
		want    string
		wantErr error
	}{
		{"two days", "14:30", []string{"mon", "wed"}, "30 14 * * mon,wed", nil},
		{"midnight", "00:05", []string{"sun"}, "5 0 * * sun", nil},
		{"deduped and sorted", "09:00", []string{"wed", "mon", "mon"}, "0 9 * * mon,wed", nil},
		{"case folded", "09:00", []string{"Fri"}, "0 9 * * fri", nil},
		{"bad hour", "25:00", []string{"mon"}, "", ErrInvalidTime},
		{"not a clock", "9h30", []string{"mon"}, "", ErrInvalidTime},
		{"empty time", "", []string{"mon"}, "", ErrInvalidTime},
		{"no days", "10:00", nil, "", ErrInvalidDays},
		{"unknown day", "10:00", []string{"segunda"}, "", ErrInvalidDays},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Spec(tt.at, tt.days)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Spec error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("Spec = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSaveValidatesBeforePersisting(t *testing.T) {
	t.Parallel()
	svc, _, settings := newService(t, true)

	err := svc.Save(JobConfig{Enabled: true, Time: "10:00", Days: []string{"mon"}})
	if !errors.Is(err, ErrMissingFile) {
		t.Fatalf("Save without filepath = %v, want ErrMissingFile", err)
	}
	err = svc.Save(JobConfig{Enabled: true, Time: "nope", Days: []string{"mon"}, Filepath: "x.txt"})
	if !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("Save with bad time = %v, want ErrInvalidTime", err)
	}

	if sec := settings.Section(config.SectionScheduleCollection); len(sec) != 0 {
		t.Fatalf("rejected Save must not persist, section = %v", sec)
	}
	if svc.Armed() {
		t.Fatal("rejected Save must not arm the job")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t, true)
	job := JobConfig{
		Enabled:    true,
		Time:       "08:45",
		Days:       []string{"mon", "thu"},
		Filepath:   "clientes.txt",
		Message:    "lembrete de cobrança",
		Attachment: "boleto.pdf",
	}
	if err := svc.Save(job); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !svc.Armed() {
		t.Fatal("job should be armed after Save")
	}

	got := svc.Load()
	if got.Time != job.Time || got.Filepath != job.Filepath || got.Message != job.Message {
		t.Fatalf("Load = %+v, want %+v", got, job)
	}
	if len(got.Days) != 2 || got.Days[0] != "mon" || got.Days[1] != "thu" {
		t.Fatalf("Load days = %v", got.Days)
	}

	// Disabling removes the live job but keeps the stored definition.
	job.Enabled = false
	if err := svc.Save(job); err != nil {
		t.Fatalf("Save disabled: %v", err)
	}
	if svc.Armed() {
		t.Fatal("disabled job must not stay armed")
	}
	if got := svc.Load(); got.Enabled || got.Time != "08:45" {
		t.Fatalf("Load after disable = %+v", got)
	}
}

func TestFireSkipsWhenDisconnected(t *testing.T) {
	t.Parallel()
	svc, starter, _ := newService(t, false)
	svc.fire()
	if starter.count() != 0 {
		t.Fatal("fire must skip while the session is down")
	}
}

func TestFireSkipsMissingContactFile(t *testing.T) {
	t.Parallel()
	svc, starter, _ := newService(t, true)
	if err := svc.Save(JobConfig{
		Enabled: true, Time: "10:00", Days: []string{"mon"},
		Filepath: filepath.Join(t.TempDir(), "gone.txt"),
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	svc.fire()
	if starter.count() != 0 {
		t.Fatal("fire must skip when the contact list is missing")
	}
}

func TestFireStartsCampaign(t *testing.T) {
	t.Parallel()
	list := filepath.Join(t.TempDir(), "clientes.txt")
	if err := os.WriteFile(list, []byte("11000000001\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	svc, starter, _ := newService(t, true)
	if err := svc.Save(JobConfig{
		Enabled: true, Time: "10:00", Days: []string{"mon"},
		Filepath: list, Message: "bom dia", Attachment: "",
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	svc.fire()
	if starter.count() != 1 {
		t.Fatalf("fire started %d campaigns, want 1", starter.count())
	}
	cfg := starter.cfgs[0]
	if cfg.Source != contacts.FileList || cfg.ContactListPath != list || cfg.Message != "bom dia" {
		t.Fatalf("campaign config = %+v", cfg)
	}
}
