// Package editor keeps the editing state of one open checklist file: the
// node store, document sections, dirty flag, status line and the save
// lock. Guard failures become status messages and returned errors; nothing
// here panics on bad input.
package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"catty/api/internal/checklist"
	"catty/api/internal/export"
	"catty/api/internal/ingest"
)

var (
	ErrSaveInProgress = errors.New("a save is already in progress")
	ErrClosed         = errors.New("editing session closed")
)

type StatusKind string

const (
	StatusOK    StatusKind = "ok"
	StatusWarn  StatusKind = "warn"
	StatusError StatusKind = "error"
)

type Status struct {
	Kind    StatusKind `json:"kind"`
	Message string     `json:"message"`
}

type Options struct {
	// Scales apply to files that carry none.
	Scales         checklist.Scales
	PriorityLevels []checklist.PriorityLevel
	CloseFinalBand bool
}

// Session edits one file. It is safe for concurrent use; the save request
// runs without holding the lock so edits made meanwhile keep the session
// dirty.
type Session struct {
	mu sync.Mutex

	client FileClient
	file   File
	doc    *checklist.Document
	store  *checklist.Store

	envelopes []map[string]any
	hadScales bool

	levels     []checklist.PriorityLevel
	closeFinal bool
	exporter   *export.Service

	dirty    bool
	revision int
	saving   bool
	closed   bool
	status   Status
}

// Open loads a file through client and adapts its contents.
func Open(ctx context.Context, client FileClient, fileID string, opts Options) (*Session, error) {
	file, err := client.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("load file %s: %w", fileID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewSession(client, file, opts), nil
}

// NewSession adapts file.FileJSON. Ingestion warnings become the initial
// status.
func NewSession(client FileClient, file *File, opts Options) *Session {
	res := ingest.Adapt(json.RawMessage(file.FileJSON), ingest.Options{Scales: opts.Scales})

	levels := opts.PriorityLevels
	if len(levels) == 0 {
		levels = checklist.DefaultPriorityLevels()
	}
	s := &Session{
		client:     client,
		file:       *file,
		doc:        res.Document,
		store:      res.Store(),
		envelopes:  res.Envelopes,
		hadScales:  res.HadScales,
		levels:     levels,
		closeFinal: opts.CloseFinalBand,
		exporter:   export.NewService(export.Options{PriorityLevels: levels, CloseFinalBand: opts.CloseFinalBand}),
		status:     Status{Kind: StatusOK, Message: fmt.Sprintf("loaded %d nodes", len(res.Document.Nodes))},
	}
	s.file.FileJSON = nil
	if warning := res.Warning(); warning != "" {
		s.status = Status{Kind: StatusWarn, Message: warning}
	}
	return s
}

func (s *Session) File() File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file
}

func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close drops interest in the file; a save still in flight is discarded
// when it returns.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Document returns a snapshot of the current document.
func (s *Session) Document() *checklist.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() *checklist.Document {
	doc := *s.doc
	doc.Meta = maps.Clone(s.doc.Meta)
	doc.Questions = maps.Clone(s.doc.Questions)
	doc.UI = maps.Clone(s.doc.UI)
	doc.Intro = append([]any(nil), s.doc.Intro...)
	doc.Scales = s.doc.Scales.Clone()
	doc.Columns = append([]checklist.Column(nil), s.doc.Columns...)
	doc.PriorityLevels = append([]checklist.PriorityLevel(nil), s.doc.PriorityLevels...)
	doc.Nodes = s.store.Nodes()
	doc.SelectedID = s.store.Selected()
	return &doc
}

func (s *Session) Node(id checklist.NodeID) (checklist.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(id)
}

// Tree returns the nodes in display order with their depth.
func (s *Session) Tree() ([]checklist.Node, map[checklist.NodeID]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := s.store.Nodes()
	return checklist.OrderedNodes(nodes), checklist.Depths(nodes)
}

// Assessments returns severity and priority for every item.
func (s *Session) Assessments() map[checklist.NodeID]checklist.Assessment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return checklist.Assess(s.store.Nodes(), s.doc.Scales, s.priorityLevels(), s.closeFinal)
}

// Levels returns the aggregated application and importance levels.
func (s *Session) Levels() map[checklist.NodeID]checklist.Levels {
	s.mu.Lock()
	defer s.mu.Unlock()
	return checklist.AggregateLevels(s.store.Nodes(), s.doc.Scales)
}

func (s *Session) priorityLevels() []checklist.PriorityLevel {
	if len(s.doc.PriorityLevels) > 0 {
		return s.doc.PriorityLevels
	}
	return s.levels
}

// changed marks the document dirty. Callers hold the lock.
func (s *Session) changed(format string, args ...any) {
	s.dirty = true
	s.revision++
	s.status = Status{Kind: StatusOK, Message: fmt.Sprintf(format, args...)}
}

// fail records err as the status line and returns it. Callers hold the
// lock.
func (s *Session) fail(err error) error {
	s.status = Status{Kind: StatusError, Message: err.Error()}
	return err
}

func (s *Session) Select(id checklist.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Select(id); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *Session) AddNode(t checklist.NodeType) (checklist.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, err := s.store.AddNode(t)
	if err != nil {
		return checklist.Node{}, s.fail(err)
	}
	s.changed("%s %s added", t, node.ID)
	return node, nil
}

func (s *Session) DuplicateNode(id checklist.NodeID) (checklist.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, err := s.store.Duplicate(id)
	if err != nil {
		return checklist.Node{}, s.fail(err)
	}
	s.changed("node %s duplicated as %s", id, node.ID)
	return node, nil
}

// DeleteNode removes id and its whole subtree.
func (s *Session) DeleteNode(id checklist.NodeID) ([]checklist.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, err := s.store.DeleteCascade(id)
	if err != nil {
		return nil, s.fail(err)
	}
	s.changed("deleted %d nodes", len(removed))
	return removed, nil
}

func (s *Session) SetParent(id, parent checklist.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SetParent(id, parent); err != nil {
		return s.fail(err)
	}
	s.changed("parent updated")
	return nil
}

// Move shifts id one place among its siblings; dir is +1 or -1.
func (s *Session) Move(id checklist.NodeID, dir int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved, err := s.store.Move(id, dir)
	if err != nil {
		return false, s.fail(err)
	}
	if moved {
		s.changed("node moved")
	}
	return moved, nil
}

func (s *Session) UpdateNode(id checklist.NodeID, patch checklist.NodePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Update(id, patch); err != nil {
		return s.fail(err)
	}
	s.changed("node updated")
	return nil
}

// SetMeta sets one meta field; a nil value removes it.
func (s *Session) SetMeta(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Meta == nil {
		s.doc.Meta = map[string]any{}
	}
	if value == nil {
		delete(s.doc.Meta, key)
	} else {
		s.doc.Meta[key] = value
	}
	s.changed("meta updated")
}

func (s *Session) SetUI(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.UI == nil {
		s.doc.UI = map[string]any{}
	}
	s.doc.UI[key] = value
	s.changed("view settings updated")
}

// PutScaleEntry inserts or replaces a scale entry. The document then
// carries its own scales, and saves write them.
func (s *Session) PutScaleEntry(kind checklist.ScaleKind, entry checklist.ScaleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.doc.Scales.Put(kind, entry); err != nil {
		return s.fail(err)
	}
	s.hadScales = true
	s.changed("scale %s updated", kind)
	return nil
}

func (s *Session) RemoveScaleEntry(kind checklist.ScaleKind, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.doc.Scales.Remove(kind, key) {
		s.status = Status{Kind: StatusWarn, Message: fmt.Sprintf("scale %s has no entry %s", kind, key)}
		return false
	}
	s.hadScales = true
	s.changed("scale %s entry %s removed", kind, key)
	return true
}

func (s *Session) SetPriorityLevels(levels []checklist.PriorityLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.PriorityLevels = append([]checklist.PriorityLevel(nil), levels...)
	s.changed("priority levels updated")
}

// Validate checks the current document and reports the outcome on the
// status line.
func (s *Session) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snapshot().Validate(); err != nil {
		return s.fail(err)
	}
	s.status = Status{Kind: StatusOK, Message: "document is valid"}
	return nil
}

// Save validates and persists the document, re-wrapping it in the same
// envelope it was loaded with. Only one save runs at a time; a second
// call while one is in flight fails with ErrSaveInProgress. A failed save
// leaves the document dirty.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.saving {
		err := s.fail(ErrSaveInProgress)
		s.mu.Unlock()
		return err
	}
	doc := s.snapshot()
	if err := doc.Validate(); err != nil {
		err = s.fail(err)
		s.mu.Unlock()
		return err
	}
	body := export.Wrap(export.ToOriginal(doc, export.OriginalOptions{PreserveScales: s.hadScales}), s.envelopes)
	revision := s.revision
	s.saving = true
	s.mu.Unlock()

	file, err := s.client.UpdateFile(ctx, s.file.ID, body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if s.closed {
		return ErrClosed
	}
	if err != nil {
		return s.fail(fmt.Errorf("could not save: %w", err))
	}
	if file != nil {
		s.file = *file
		s.file.FileJSON = nil
	}
	if s.revision == revision {
		s.dirty = false
	}
	s.status = Status{Kind: StatusOK, Message: "saved"}
	return nil
}

// Export renders the current document locally.
func (s *Session) Export(ctx context.Context, format export.Format) (*export.Result, error) {
	s.mu.Lock()
	doc := s.snapshot()
	name := s.file.Code
	title := s.file.Name
	s.mu.Unlock()

	result, err := s.exporter.Export(ctx, export.Request{Document: doc, Format: format, Name: name, Title: title})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return nil, s.fail(err)
	}
	s.status = Status{Kind: StatusOK, Message: fmt.Sprintf("exported %s", result.Filename)}
	return result, nil
}

// DownloadXLSX fetches the workbook the server builds from the saved file.
// Unsaved edits are not part of it; the status line says so.
func (s *Session) DownloadXLSX(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if err := s.snapshot().Validate(); err != nil {
		err = s.fail(err)
		s.mu.Unlock()
		return nil, err
	}
	id, dirty := s.file.ID, s.dirty
	s.mu.Unlock()

	data, err := s.client.DownloadFileXLSX(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return nil, s.fail(fmt.Errorf("could not export: %w", err))
	}
	if dirty {
		s.status = Status{Kind: StatusWarn, Message: "workbook exported from the last saved version; save to include pending edits"}
	} else {
		s.status = Status{Kind: StatusOK, Message: "workbook exported"}
	}
	return data, nil
}
