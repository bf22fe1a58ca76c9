package contacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"zapfacil/pkg/logx"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	l := NewLoader("55", logx.Nop())

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bare local number", raw: "11987654321", want: "5511987654321"},
		{name: "already prefixed", raw: "5511987654321", want: "5511987654321"},
		{name: "formatted international", raw: "+55 11 98765-4321", want: "5511987654321"},
		{name: "short number starting with code", raw: "5511", want: "555511"},
		{name: "empty", raw: "", want: ""},
		{name: "punctuation only", raw: "()-", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Normalize(tt.raw); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestResolveManual(t *testing.T) {
	t.Parallel()
	l := NewLoader("55", logx.Nop())
	got := l.Resolve(ManualList, "", []ManualEntry{
		{Name: "Maria Silva", Phone: "(11) 98765-4321"},
		{Name: "", Phone: "5521912345678"},
	})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Identifier != "5511987654321" || got[0].DisplayName != "Maria Silva" {
		t.Fatalf("unexpected first contact: %+v", got[0])
	}
	if got[1].Identifier != "5521912345678" {
		t.Fatalf("unexpected second contact: %+v", got[1])
	}
}

func TestResolveFileList(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "lista.txt")
	content := "11987654321\n\n  5511912345678  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader("55", logx.Nop())
	got := l.Resolve(FileList, path, nil)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Identifier != "5511987654321" {
		t.Fatalf("first = %q", got[0].Identifier)
	}
	if got[1].Identifier != "5511912345678" {
		t.Fatalf("second = %q", got[1].Identifier)
	}
}

func TestResolveSpreadsheet(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "lista.xlsx")
	f := excelize.NewFile()
	// First column only counts; extra columns and empty first cells are
	// ignored, blank rows are skipped.
	if err := f.SetCellValue("Sheet1", "A1", "11987654321"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "B1", "Ana"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "B2", "sem telefone"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "A3", "5511912345678"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "A4", "  "); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	l := NewLoader("55", logx.Nop())
	got := l.Resolve(FileList, path, nil)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (%+v)", len(got), got)
	}
	if got[0].Identifier != "5511987654321" {
		t.Fatalf("first = %q, want normalized number", got[0].Identifier)
	}
	if got[1].Identifier != "5511912345678" {
		t.Fatalf("second = %q", got[1].Identifier)
	}
}

func TestResolveUnsupportedExtension(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "lista.csv")
	if err := os.WriteFile(path, []byte("11987654321\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLoader("55", logx.Nop())
	if got := l.Resolve(FileList, path, nil); len(got) != 0 {
		t.Fatalf("unsupported format must yield empty, got %d", len(got))
	}
}

func TestResolveGroupListSkipsNormalization(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "grupos.txt")
	if err := os.WriteFile(path, []byte("Equipe Vendas\nClientes VIP\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader("55", logx.Nop())
	got := l.Resolve(GroupList, path, nil)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Identifier != "Equipe Vendas" {
		t.Fatalf("group title mangled: %q", got[0].Identifier)
	}
}

func TestResolveMissingFileYieldsEmpty(t *testing.T) {
	t.Parallel()
	l := NewLoader("55", logx.Nop())
	if got := l.Resolve(FileList, "/nonexistent/lista.txt", nil); len(got) != 0 {
		t.Fatalf("expected empty, got %d", len(got))
	}
	if got := l.Resolve(FileList, "", nil); len(got) != 0 {
		t.Fatalf("expected empty for blank path, got %d", len(got))
	}
}

func TestResolveKeepsDuplicates(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "lista.txt")
	if err := os.WriteFile(path, []byte("11987654321\n11987654321\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLoader("55", logx.Nop())
	if got := l.Resolve(FileList, path, nil); len(got) != 2 {
		t.Fatalf("duplicates must be kept, len = %d", len(got))
	}
}
