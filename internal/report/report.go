// Package report serializes a completed campaign run into the fixed text
// document operators archive, and manages the reports directory.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"zapfacil/pkg/logx"
)

const (
	title         = "RELATÓRIO DE CAMPANHA - ZAP FÁCIL"
	detailsHeader = "DETALHES DO ENVIO"
	banner        = "=================================================="

	timestampLayout = "02/01/2006 15:04:05"
	filenameLayout  = "2006-01-02_15-04-05"
)

// Outcome status labels as they appear in report lines.
const (
	StatusSuccess = "SUCESSO"
	StatusPartial = "SUCESSO PARCIAL (texto enviado, anexo falhou)"
	StatusFailure = "FALHA"
)

// Entry is one per-recipient report line.
type Entry struct {
	Recipient string
	Status    string
	Reason    string
}

// Summary is everything the writer needs about a finished run.
//
// Notes carry run-level markers (interruption, connection abort) appended
// after the per-recipient details.
type Summary struct {
	Started  time.Time
	Finished time.Time
	Total    int
	Success  int
	Failed   int
	Entries  []Entry
	Notes    []string
}

var ErrBadName = errors.New("invalid report name")

// Store owns the reports directory.
type Store struct {
	dir string
	log logx.Logger
}

func NewStore(dir string, log logx.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, log: log}, nil
}

func (s *Store) Dir() string { return s.dir }

// Filename derives the report file name from the run start time. Two runs
// started within the same second collide; this matches the original tool
// and is accepted as a known limitation.
func Filename(started time.Time) string {
	return "Relatorio_" + started.Format(filenameLayout) + ".txt"
}

// Write renders and persists the report, returning the file name.
func (s *Store) Write(sum Summary) (string, error) {
	name := Filename(sum.Started)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(Render(sum)), 0o644); err != nil {
		s.log.Error("failed to save report", logx.String("path", path), logx.Err(err))
		return "", err
	}
	s.log.Info("report saved", logx.String("file", name))
	return name, nil
}

// Render produces the fixed-structure document.
func Render(sum Summary) string {
	var b strings.Builder
	b.WriteString(banner + "\n")
	b.WriteString(title + "\n")
	b.WriteString(banner + "\n\n")
	fmt.Fprintf(&b, "Início: %s\n", sum.Started.Format(timestampLayout))
	fmt.Fprintf(&b, "Fim: %s\n", sum.Finished.Format(timestampLayout))
	fmt.Fprintf(&b, "Duração: %s\n\n", sum.Finished.Sub(sum.Started).Round(time.Second))
	fmt.Fprintf(&b, "Resumo:\n  - Total: %d\n  - Sucessos: %d\n  - Falhas: %d\n\n",
		sum.Total, sum.Success, sum.Failed)
	b.WriteString(banner + "\n")
	b.WriteString(detailsHeader + "\n")
	b.WriteString(banner + "\n\n")

	lines := make([]string, 0, len(sum.Entries)+len(sum.Notes))
	for _, e := range sum.Entries {
		line := fmt.Sprintf("Destinatário: %s\tStatus: %s", e.Recipient, e.Status)
		if e.Reason != "" {
			line += "\tMotivo: " + e.Reason
		}
		lines = append(lines, line)
	}
	for _, n := range sum.Notes {
		lines = append(lines, "\n"+n)
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// List returns report file names, newest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Error("failed to list reports", logx.Err(err))
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (s *Store) Read(name string) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		s.log.Error("failed to read report", logx.String("file", name), logx.Err(err))
		return "", err
	}
	return string(b), nil
}

func (s *Store) Delete(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		s.log.Error("failed to delete report", logx.String("file", name), logx.Err(err))
		return err
	}
	s.log.Info("report deleted", logx.String("file", name))
	return nil
}

// resolve rejects names that would escape the reports directory.
func (s *Store) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return filepath.Join(s.dir, name), nil
}
