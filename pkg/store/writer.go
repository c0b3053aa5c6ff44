package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/solarecho3/web-tools/pkg/table"
)

var rowsPersistedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "webtools_rows_persisted_total",
	Help: "Total rows appended to stores by capture kind",
}, []string{"table"})

// Column names added to every persisted capture.
const (
	ColumnCaptureTimestamp = "capture_timestamp"
	ColumnQueryTerm        = "query_term"
)

// Capture describes one persisted write.
type Capture struct {
	Kind       Kind
	ID         string
	Path       string
	Table      string
	Rows       int
	CapturedAt time.Time
}

// Writer persists captures into a Layout.
type Writer struct {
	layout Layout
	logger zerolog.Logger
	now    func() time.Time
}

// NewWriter creates a writer for layout.
func NewWriter(layout Layout, logger zerolog.Logger) *Writer {
	return &Writer{layout: layout, logger: logger, now: time.Now}
}

// SetClock replaces the capture clock (for testing).
func (w *Writer) SetClock(now func() time.Time) {
	w.now = now
}

// Layout returns the writer's layout.
func (w *Writer) Layout() Layout {
	return w.layout
}

// WriteCapture appends t to the store and table of (kind, id). Query
// captures are tagged with queryTerm. Every row gets the capture timestamp
// in the first column; t itself is left unchanged.
func (w *Writer) WriteCapture(ctx context.Context, kind Kind, id string, t *table.Table, queryTerm string) (Capture, error) {
	path, name, err := w.layout.Locate(kind, id)
	if err != nil {
		return Capture{}, err
	}

	capturedAt := w.now()
	data := table.Concat(t)

	if kind == KindQuery {
		if err := tagColumn(data, ColumnQueryTerm, queryTerm); err != nil {
			return Capture{}, err
		}
	}
	if err := tagColumn(data, ColumnCaptureTimestamp, capturedAt); err != nil {
		return Capture{}, err
	}

	s, err := Open(path, w.logger)
	if err != nil {
		return Capture{}, err
	}
	defer s.Close()

	n, err := s.Append(ctx, name, data.Text())
	if err != nil {
		return Capture{}, err
	}
	rowsPersistedTotal.WithLabelValues(string(kind)).Add(float64(n))

	w.logger.Info().
		Str("kind", string(kind)).
		Str("path", path).
		Str("table", name).
		Int("rows", n).
		Msg("Capture persisted")

	return Capture{Kind: kind, ID: id, Path: path, Table: name, Rows: n, CapturedAt: capturedAt}, nil
}

// tagColumn puts a constant column first. A column of the same name is
// dropped and the insert retried once.
func tagColumn(t *table.Table, name string, value any) error {
	err := t.InsertConstant(0, name, value)
	if errors.Is(err, table.ErrColumnExists) {
		if err := t.DropColumn(name); err != nil {
			return fmt.Errorf("replace %s: %w", name, err)
		}
		err = t.InsertConstant(0, name, value)
	}
	if err != nil {
		return fmt.Errorf("tag %s: %w", name, err)
	}
	return nil
}

// ReadCapture reads back every capture of (kind, id).
func (w *Writer) ReadCapture(ctx context.Context, kind Kind, id string) (*table.Table, error) {
	path, name, err := w.layout.Locate(kind, id)
	if err != nil {
		return nil, err
	}

	s, err := OpenReadOnly(path, w.logger)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return s.Read(ctx, name)
}
