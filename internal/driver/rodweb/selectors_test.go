package rodweb

import "testing"

func TestSearchResultByTitle(t *testing.T) {
	t.Parallel()
	got := searchResultByTitle(`Time "A"`)
	want := `span[title="Time \"A\""]`
	if got != want {
		t.Fatalf("searchResultByTitle = %s, want %s", got, want)
	}
}

func TestAttachInputFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want string
	}{
		{"foto.PNG", selImageInput},
		{"clip.mp4", selImageInput},
		{"boleto.pdf", selDocumentInput},
		{"gravacao.wav", selDocumentInput},
		{"sem-extensao", selDocumentInput},
	}
	for _, tt := range tests {
		if got := attachInputFor(tt.path); got != tt.want {
			t.Errorf("attachInputFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
