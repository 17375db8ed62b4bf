package export

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catty/api/internal/checklist"
)

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]Format{"": FormatXLSX, "XLSX": FormatXLSX, " csv ": FormatCSV, "json": FormatJSON, "Pdf": FormatPDF} {
		got, err := ParseFormat(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("docx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExportRejectsInvalidDocument(t *testing.T) {
	doc := sampleDocument()
	doc.Nodes[0].Code = "1.1.1"

	_, err := NewService(Options{}).Export(context.Background(), Request{Document: doc, Format: FormatXLSX})
	var verr *checklist.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, checklist.ViolationDuplicateCode, verr.Violations[0].Kind)
}

func TestExportRequiresDocument(t *testing.T) {
	_, err := NewService(Options{}).Export(context.Background(), Request{Format: FormatCSV})
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestExportFormats(t *testing.T) {
	svc := NewService(Options{})
	ctx := context.Background()

	tests := []struct {
		format   Format
		filename string
		mime     string
	}{
		{FormatXLSX, "F-ABC123.xlsx", mimeXLSX},
		{FormatCSV, "F-ABC123.csv", mimeCSV},
		{FormatJSON, "F-ABC123.json", mimeJSON},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			result, err := svc.Export(ctx, Request{Document: sampleDocument(), Format: tt.format, Name: "F-ABC123"})
			require.NoError(t, err)
			assert.Equal(t, tt.filename, result.Filename)
			assert.Equal(t, tt.mime, result.MimeType)
			assert.NotEmpty(t, result.Data)
		})
	}

	_, err := svc.Export(ctx, Request{Document: sampleDocument(), Format: "docx"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExportJSONShape(t *testing.T) {
	result, err := NewService(Options{}).Export(context.Background(), Request{Document: sampleDocument(), Format: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, "archivo.json", result.Filename)

	var payload struct {
		Data struct {
			Scales checklist.Scales  `json:"scales"`
			Nodes  []json.RawMessage `json:"nodes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &payload))
	assert.Equal(t, checklist.DefaultScales(), payload.Data.Scales)
	assert.Len(t, payload.Data.Nodes, 4)
}

func TestExportPDFUsesPrintView(t *testing.T) {
	svc := NewService(Options{CloseFinalBand: true})
	var gotHTML, gotName string
	svc.pdf = func(_ context.Context, html, name string) (*Result, error) {
		gotHTML, gotName = html, name
		return &Result{Data: []byte("%PDF-1.4"), Filename: sanitizeFilename(name) + ".pdf", MimeType: mimePDF}, nil
	}

	result, err := svc.Export(context.Background(), Request{Document: sampleDocument(), Format: FormatPDF, Name: "F-ABC123", Title: "Auditoría"})
	require.NoError(t, err)
	assert.Equal(t, "F-ABC123.pdf", result.Filename)
	assert.Equal(t, "F-ABC123", gotName)
	assert.Contains(t, gotHTML, "<title>Auditoría</title>")
	assert.True(t, strings.Contains(gotHTML, ">Alta<"), "closed final band classifies a severity of 100")
}

func TestExportPriorityLevelsFromDocument(t *testing.T) {
	doc := sampleDocument()
	doc.PriorityLevels = []checklist.PriorityLevel{{ID: "all", Name: "Revisar", Min: 0, Max: 101}}

	html, err := NewService(Options{}).HTML(Request{Document: doc})
	require.NoError(t, err)
	assert.Contains(t, html, ">Revisar<")
	assert.Contains(t, html, defaultWorkbookTitle)
}
