// Package sink implements the submission sinks that receive finished records: the local
// store table and a Google Sheets spreadsheet.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/iskan70/my-logistic-bot/internal/flow"
	"github.com/iskan70/my-logistic-bot/internal/store"
)

// ErrEmptyRecord is returned for a record without columns.
var ErrEmptyRecord = errors.New("record has no columns")

// StoreSink appends records to the submissions table of the store.
type StoreSink struct {
	repo store.SubmissionRepo
	now  func() time.Time
}

var _ flow.Sink = (*StoreSink)(nil)

// NewStoreSink creates a sink writing into repo.
func NewStoreSink(repo store.SubmissionRepo) *StoreSink {
	return &StoreSink{repo: repo, now: time.Now}
}

// AppendRecord stores fields as one submission. The first column is the record kind.
func (s *StoreSink) AppendRecord(ctx context.Context, fields []string) error {
	if len(fields) == 0 {
		return ErrEmptyRecord
	}
	sub := store.Submission{
		ID:        uuid.NewString(),
		Kind:      fields[0],
		Columns:   append([]string(nil), fields...),
		CreatedAt: s.now(),
	}
	if err := s.repo.AddSubmission(ctx, sub); err != nil {
		return fmt.Errorf("failed to store submission: %w", err)
	}
	slog.Debug("StoreSink AppendRecord", "id", sub.ID, "kind", sub.Kind)
	return nil
}

// Multi appends to every sink in order and reports the first failure. A record counts as
// submitted only if all sinks took it.
type Multi []flow.Sink

var _ flow.Sink = Multi(nil)

func (m Multi) AppendRecord(ctx context.Context, fields []string) error {
	var errs []error
	for _, s := range m {
		if err := s.AppendRecord(ctx, fields); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
