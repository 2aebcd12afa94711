package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseVTT(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"single cue",
			"WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nHello world\n",
			"Hello world",
		},
		{
			"numbered cues and markers",
			"WEBVTT\n\n1\n00:00:01.000 --> 00:00:02.000\n[Music]\n\n2\n00:00:02.000 --> 00:00:04.000\nWelcome to\nthe course.\n",
			"Welcome to the course.",
		},
		{
			"note blocks and crlf",
			"WEBVTT - title\r\n\r\nNOTE this is a comment\r\n\r\n00:01.000 --> 00:02.000\r\n  First line  \r\n",
			"First line",
		},
		{"empty", "", ""},
		{"header only", "WEBVTT\n", ""},
		{
			"bracket inside sentence is kept",
			"WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nsee [figure 2] here\n",
			"see [figure 2] here",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseVTT(tt.in); got != tt.want {
				t.Errorf("ParseVTT() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadVTT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intro.vtt")
	if err := os.WriteFile(path, []byte("\ufeffWEBVTT\n\n00:00:01.000 --> 00:00:02.000\nHi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadVTT(path)
	if err != nil {
		t.Fatalf("ReadVTT: %v", err)
	}
	if got != "Hi" {
		t.Errorf("ReadVTT() = %q, want %q", got, "Hi")
	}

	if _, err := ReadVTT(filepath.Join(t.TempDir(), "missing.vtt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCleanPDFText(t *testing.T) {
	in := "Page one   text\n\n\n\nmore\f\fPage  two\n"
	want := "Page one text\n\nmore\n\nPage two"
	if got := CleanPDFText(in); got != want {
		t.Errorf("CleanPDFText() = %q, want %q", got, want)
	}
}

func TestPDFToTextMissingBinary(t *testing.T) {
	p := PDFToText{Bin: "definitely-not-a-pdftotext-binary"}
	_, err := p.ExtractText(context.Background(), "x.pdf")
	if !errors.Is(err, ErrPDFToolMissing) {
		t.Errorf("err = %v, want ErrPDFToolMissing", err)
	}
}
