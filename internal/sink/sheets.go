package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iskan70/my-logistic-bot/internal/flow"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// DefaultSheetRange appends after the last row of the first sheet.
const DefaultSheetRange = "A1"

// valueInputOption lets Sheets parse timestamps and numbers as a user would type them.
const valueInputOption = "USER_ENTERED"

var ErrNoSpreadsheetID = errors.New("spreadsheet id is required")

// SheetsSink appends records as rows of a Google spreadsheet.
type SheetsSink struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	sheetRange    string
}

var _ flow.Sink = (*SheetsSink)(nil)

// SheetsOpts configures a SheetsSink.
type SheetsOpts struct {
	CredentialsFile string
	Range           string
	ClientOptions   []option.ClientOption
}

// SheetsOption configures a SheetsSink.
type SheetsOption func(*SheetsOpts)

// WithCredentialsFile authenticates with a service account key file.
func WithCredentialsFile(path string) SheetsOption {
	return func(o *SheetsOpts) { o.CredentialsFile = path }
}

// WithRange overrides the A1 range rows are appended to.
func WithRange(r string) SheetsOption {
	return func(o *SheetsOpts) { o.Range = r }
}

// WithClientOptions passes extra options to the Sheets client.
func WithClientOptions(opts ...option.ClientOption) SheetsOption {
	return func(o *SheetsOpts) { o.ClientOptions = append(o.ClientOptions, opts...) }
}

// NewSheetsSink creates a sink for the spreadsheet with the given id.
func NewSheetsSink(ctx context.Context, spreadsheetID string, opts ...SheetsOption) (*SheetsSink, error) {
	if spreadsheetID == "" {
		return nil, ErrNoSpreadsheetID
	}
	cfg := SheetsOpts{Range: DefaultSheetRange}
	for _, opt := range opts {
		opt(&cfg)
	}
	clientOpts := append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, cfg.ClientOptions...)
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	slog.Debug("NewSheetsSink created", "spreadsheet", spreadsheetID, "range", cfg.Range, "credentials_set", cfg.CredentialsFile != "")
	return &SheetsSink{values: svc.Spreadsheets.Values, spreadsheetID: spreadsheetID, sheetRange: cfg.Range}, nil
}

// AppendRecord appends fields as one row.
func (s *SheetsSink) AppendRecord(ctx context.Context, fields []string) error {
	if len(fields) == 0 {
		return ErrEmptyRecord
	}
	row := make([]interface{}, len(fields))
	for i, f := range fields {
		row[i] = f
	}
	resp, err := s.values.Append(s.spreadsheetID, s.sheetRange, &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption(valueInputOption).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row to spreadsheet: %w", err)
	}
	if resp.Updates != nil {
		slog.Debug("SheetsSink AppendRecord", "range", resp.Updates.UpdatedRange, "cells", resp.Updates.UpdatedCells)
	}
	return nil
}
