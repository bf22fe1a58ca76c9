// Package contacts resolves campaign recipient lists from manual entries,
// flat text files and spreadsheets, normalizing phone numbers on the way.
package contacts

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"zapfacil/pkg/logx"
)

// SourceType selects where a campaign's recipients come from.
type SourceType int

const (
	// ManualList: entries typed in by the operator, with display names.
	ManualList SourceType = iota
	// FileList: one raw phone number per line (.txt) or per row (.xlsx).
	FileList
	// GroupList: group display titles, one per line/row; not normalized.
	GroupList
)

func (t SourceType) String() string {
	switch t {
	case ManualList:
		return "manual"
	case FileList:
		return "file"
	case GroupList:
		return "group"
	default:
		return fmt.Sprintf("SourceType(%d)", int(t))
	}
}

// Contact is one resolved recipient. Identifier is a normalized phone
// number or a group title; DisplayName is only present for manual entries.
type Contact struct {
	Identifier  string
	DisplayName string
}

// ManualEntry is an operator-supplied (name, raw phone) pair.
type ManualEntry struct {
	Name  string
	Phone string
}

var ErrUnsupportedFile = errors.New("unsupported contact list format")

type Loader struct {
	countryCode string
	log         logx.Logger
}

func NewLoader(countryCode string, log logx.Logger) *Loader {
	if countryCode == "" {
		countryCode = "55"
	}
	return &Loader{countryCode: countryCode, log: log}
}

// Normalize strips every non-digit character and prepends the country
// code, unless the number already starts with it and is longer than 11
// digits (a short local number that merely starts with the same digits
// still gets the prefix).
func (l *Loader) Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, l.countryCode) && len(digits) > 11 {
		return digits
	}
	return l.countryCode + digits
}

// Resolve produces the ordered recipient sequence for a campaign. It never
// deduplicates; the order is the source order. File IO failures are logged
// and yield an empty slice, which the engine treats as an empty list.
func (l *Loader) Resolve(source SourceType, listPath string, manual []ManualEntry) []Contact {
	switch source {
	case ManualList:
		out := make([]Contact, 0, len(manual))
		for _, e := range manual {
			out = append(out, Contact{Identifier: l.Normalize(e.Phone), DisplayName: strings.TrimSpace(e.Name)})
		}
		return out
	case FileList:
		return l.fromFile(listPath, true)
	case GroupList:
		return l.fromFile(listPath, false)
	default:
		l.log.Error("unknown contact source", logx.Int("source", int(source)))
		return nil
	}
}

func (l *Loader) fromFile(path string, normalize bool) []Contact {
	if strings.TrimSpace(path) == "" {
		l.log.Error("contact list path is empty")
		return nil
	}
	var (
		values []string
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		values, err = readLines(path)
	case ".xlsx":
		values, err = readFirstColumn(path)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(path))
	}
	if err != nil {
		l.log.Error("failed to read contact list", logx.String("path", path), logx.Err(err))
		return nil
	}

	out := make([]Contact, 0, len(values))
	for _, v := range values {
		id := v
		if normalize {
			id = l.Normalize(v)
		}
		if id == "" {
			continue
		}
		out = append(out, Contact{Identifier: id})
	}
	l.log.Info("contact list loaded",
		logx.Int("contacts", len(out)), logx.String("file", filepath.Base(path)))
	return out
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

// readFirstColumn takes the first cell of every row on the active sheet,
// skipping empties.
func readFirstColumn(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(row[0])
		if cell != "" {
			out = append(out, cell)
		}
	}
	return out, nil
}
