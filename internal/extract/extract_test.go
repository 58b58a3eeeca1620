package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/content-pipeline/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line endings", "a\r\nb\rc", "a\nb\nc"},
		{"trailing whitespace", "a   \nb\t", "a\nb"},
		{"blank runs collapse", "a\n\n\n\nb", "a\n\nb"},
		{"consecutive duplicates", "a\na\nb", "a\nb"},
		{"non-consecutive duplicates kept", "a\n\na", "a\n\na"},
		{"outer whitespace", "\n\n  a\n\n", "a"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

type stubEngine struct {
	pages []string
	meta  domain.DocumentMetadata
	err   error
	panic bool
}

func (s stubEngine) Name() string { return "stub" }

func (s stubEngine) Pages(ctx context.Context, pdf []byte) ([]string, domain.DocumentMetadata, error) {
	if s.panic {
		panic("xref table corrupt")
	}
	return s.pages, s.meta, s.err
}

var minimalHeader = []byte("%PDF-1.4\n")

func TestService_Extract(t *testing.T) {
	svc := NewService(stubEngine{
		pages: []string{"Ada Lovelace\nEngineer  ", "Experience\r\nAnalytical Engine"},
		meta:  domain.DocumentMetadata{Title: "Resume", Engine: "stub"},
	}, nil)

	res, err := svc.Extract(context.Background(), minimalHeader)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace\nEngineer\n\nExperience\nAnalytical Engine", res.RawText)
	assert.Equal(t, 2, res.PageCount)
	assert.Equal(t, "Resume", res.Metadata.Title)
}

func TestService_ExtractErrors(t *testing.T) {
	tests := []struct {
		name   string
		engine stubEngine
		input  []byte
	}{
		{"empty input", stubEngine{}, nil},
		{"not a pdf", stubEngine{}, []byte("hello world")},
		{"engine error", stubEngine{err: errors.New("bad xref")}, minimalHeader},
		{"engine panic", stubEngine{panic: true}, minimalHeader},
		{"no text", stubEngine{pages: []string{"  ", "\n"}}, minimalHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.engine, nil).Extract(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, domain.IsType(err, domain.ErrorTypeExtraction), "got %v", err)
		})
	}
}

func TestService_PlainEngineRejectsMalformed(t *testing.T) {
	_, err := NewService(PlainEngine{}, nil).Extract(context.Background(), []byte("%PDF-1.4\nthis is not a real document"))
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeExtraction))
}

func TestNewEngine(t *testing.T) {
	e, err := NewEngine("plain")
	require.NoError(t, err)
	assert.Equal(t, EnginePlain, e.Name())

	e, err = NewEngine("")
	require.NoError(t, err)
	assert.Equal(t, EngineFitz, e.Name())

	_, err = NewEngine("ocr")
	assert.Error(t, err)
}

func TestValidateSourcePath(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "resume.pdf")
	require.NoError(t, os.WriteFile(pdfPath, minimalHeader, 0o644))
	txtPath := filepath.Join(dir, "resume.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0o644))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"valid", pdfPath, false},
		{"empty", "", true},
		{"missing", filepath.Join(dir, "missing.pdf"), true},
		{"directory", dir, true},
		{"wrong extension", txtPath, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateSourcePath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsType(err, domain.ErrorTypeSource))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
