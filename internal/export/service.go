package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"catty/api/internal/checklist"
)

// Request contains parameters for an export operation
type Request struct {
	Document *checklist.Document
	Format   Format
	// Name is the file name stem, usually the file code.
	Name  string
	Title string
}

type Options struct {
	// PriorityLevels apply when the document declares none.
	PriorityLevels []checklist.PriorityLevel
	CloseFinalBand bool
}

// Service provides checklist export functionality
type Service struct {
	levels     []checklist.PriorityLevel
	closeFinal bool
	now        func() time.Time
	pdf        func(ctx context.Context, html, name string) (*Result, error)
}

func NewService(opts Options) *Service {
	levels := opts.PriorityLevels
	if len(levels) == 0 {
		levels = checklist.DefaultPriorityLevels()
	}
	return &Service{
		levels:     levels,
		closeFinal: opts.CloseFinalBand,
		now:        time.Now,
		pdf:        renderPDF,
	}
}

// Export validates the document and renders it in the requested format.
// An invalid document yields the *checklist.ValidationError.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if req.Document == nil {
		return nil, ErrNoDocument
	}
	if err := req.Document.Validate(); err != nil {
		return nil, err
	}
	name := sanitizeFilename(req.Name)

	switch req.Format {
	case FormatXLSX, "":
		data, err := WriteXLSX(req.Document, BuildGrid(req.Document))
		if err != nil {
			return nil, fmt.Errorf("render xlsx: %w", err)
		}
		return &Result{Data: data, Filename: name + ".xlsx", MimeType: mimeXLSX}, nil
	case FormatCSV:
		data, err := WriteCSV(BuildGrid(req.Document))
		if err != nil {
			return nil, fmt.Errorf("render csv: %w", err)
		}
		return &Result{Data: data, Filename: name + ".csv", MimeType: mimeCSV}, nil
	case FormatJSON:
		data, err := MarshalDocument(req.Document)
		if err != nil {
			return nil, fmt.Errorf("render json: %w", err)
		}
		return &Result{Data: data, Filename: name + ".json", MimeType: mimeJSON}, nil
	case FormatPDF:
		html, err := RenderChecklistHTML(s.templateData(req))
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return s.pdf(ctx, html, req.Name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

// HTML renders the printable view without converting it to PDF.
func (s *Service) HTML(req Request) (string, error) {
	if req.Document == nil {
		return "", ErrNoDocument
	}
	return RenderChecklistHTML(s.templateData(req))
}

func (s *Service) templateData(req Request) TemplateData {
	levels := req.Document.PriorityLevels
	if len(levels) == 0 {
		levels = s.levels
	}
	title := req.Title
	if title == "" {
		title = req.Document.MetaString("title")
	}
	if title == "" {
		title = defaultWorkbookTitle
	}
	return BuildTemplateData(req.Document, title, levels, s.closeFinal, s.now())
}

// MarshalDocument writes the downloadable JSON: the backend shape with its
// scales, wrapped in a single {data: ...} envelope.
func MarshalDocument(doc *checklist.Document) ([]byte, error) {
	body := ToOriginal(doc, OriginalOptions{PreserveScales: true})
	return json.MarshalIndent(map[string]any{"data": body}, "", "  ")
}
