package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/obsidianstack/agingtwin/pkg/types"
	"github.com/obsidianstack/agingtwin/twin/internal/config"
)

func readAll(t *testing.T, s Source) []types.Sample {
	t.Helper()
	var out []types.Sample
	for {
		smp, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		out = append(out, smp)
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestCSVSource_Header(t *testing.T) {
	path := writeFile(t, "temperature,soc,index\n298.15,0.5,10\n,0.6,11\n299,0.4,12\n")
	s, err := New(config.SourceConfig{Type: "csv", Path: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	got := readAll(t, s)
	want := []types.Sample{
		{Value: 0.5, Aux: 298.15, HasAux: true, Index: 10},
		{Value: 0.6, Index: 11},
		{Value: 0.4, Aux: 299, HasAux: true, Index: 12},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCSVSource_Positional(t *testing.T) {
	s, err := newCSVSource(strings.NewReader("# recorded profile\n0, 0.1\n1, 0.9, 300\n"), io.NopCloser(nil))
	if err != nil {
		t.Fatalf("newCSVSource() error = %v", err)
	}
	got := readAll(t, s)
	if len(got) != 2 {
		t.Fatalf("got %d samples, want 2", len(got))
	}
	if got[0].Value != 0.1 || got[0].HasAux {
		t.Errorf("row 0: got %+v", got[0])
	}
	if got[1].Index != 1 || got[1].Aux != 300 || !got[1].HasAux {
		t.Errorf("row 1: got %+v", got[1])
	}
}

func TestCSVSource_SocOnlyHeader(t *testing.T) {
	s, err := newCSVSource(strings.NewReader("soc\n0.2\n0.3\n"), io.NopCloser(nil))
	if err != nil {
		t.Fatalf("newCSVSource() error = %v", err)
	}
	got := readAll(t, s)
	if len(got) != 2 || got[1].Index != 1 || got[1].Value != 0.3 {
		t.Errorf("got %+v, want rows numbered from 0", got)
	}
}

func TestCSVSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad soc", "index,soc\n0,full\n", "line 2"},
		{"bad index", "index,soc\nzero,0.5\n", "index"},
		{"short row", "0\n", "missing column"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := newCSVSource(strings.NewReader(tc.content), io.NopCloser(nil))
			if err != nil {
				t.Fatalf("newCSVSource() error = %v", err)
			}
			_, err = s.Next(context.Background())
			if err == nil || errors.Is(err, io.EOF) {
				t.Fatalf("expected a parse error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestCSVSource_HeaderWithoutSoc(t *testing.T) {
	_, err := newCSVSource(strings.NewReader("index,voltage\n0,3.7\n"), io.NopCloser(nil))
	if err == nil || !strings.Contains(err.Error(), `"soc"`) {
		t.Errorf("error = %v, want missing soc column", err)
	}
}

func TestCSVSource_Empty(t *testing.T) {
	s, err := newCSVSource(strings.NewReader(""), io.NopCloser(nil))
	if err != nil {
		t.Fatalf("newCSVSource() error = %v", err)
	}
	if _, err := s.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next() on empty file = %v, want io.EOF", err)
	}
}

func TestCSVSource_MissingFile(t *testing.T) {
	_, err := New(config.SourceConfig{Type: "csv", Path: filepath.Join(t.TempDir(), "nope.csv")})
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestNew_UnsupportedType(t *testing.T) {
	if _, err := New(config.SourceConfig{Type: "modbus"}); err == nil {
		t.Fatal("expected error for unsupported type, got nil")
	}
}
