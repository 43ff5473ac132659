package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"video-agent/config"
	"video-agent/metrics"
	"video-agent/provider"
	"video-agent/types"
)

// Sheets appends one row per status write to a Google Sheet. Get returns the
// last row for the run id, so later rows supersede earlier ones.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetRange    string

	mu      sync.Mutex
	lastRow map[string][]string
}

// NewSheets opens the spreadsheet named by cfg.SpreadsheetID
func NewSheets(ctx context.Context, cfg config.LedgerConfig, credentialsFile string, opts ...option.ClientOption) (*Sheets, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets ledger needs ledger.spreadsheet_id")
	}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(sheets.SpreadsheetsScope))
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	rng := cfg.SheetRange
	if rng == "" {
		rng = "Sheet1"
	}
	return &Sheets{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetRange:    rng,
		lastRow:       make(map[string][]string),
	}, nil
}

func (s *Sheets) AppendOrUpdate(ctx context.Context, runID string, rec types.StatusRecord) (err error) {
	rec.RunID = runID
	row := rec.Row()

	s.mu.Lock()
	same := slices.Equal(s.lastRow[runID], row)
	s.mu.Unlock()
	if same {
		return nil
	}

	defer func() { metrics.ObserveProvider("sheets", err) }()
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}
	_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetRange, &sheets.ValueRange{
		Values: [][]any{values},
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return sheetsError("append", err)
	}

	s.mu.Lock()
	if finished(rec) {
		// no more writes expected for this run
		delete(s.lastRow, runID)
	} else {
		s.lastRow[runID] = row
	}
	s.mu.Unlock()
	return nil
}

func finished(rec types.StatusRecord) bool {
	state := rec.Get(types.FieldState)
	return state == "done" || state == "failed"
}

func (s *Sheets) Get(ctx context.Context, runID string) (rec *types.StatusRecord, err error) {
	defer func() { metrics.ObserveProvider("sheets", err) }()

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetRange).Context(ctx).Do()
	if err != nil {
		return nil, sheetsError("get", err)
	}

	var found []string
	for _, r := range resp.Values {
		if len(r) == 0 || fmt.Sprint(r[0]) != runID {
			continue
		}
		found = found[:0]
		for _, v := range r {
			found = append(found, fmt.Sprint(v))
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	out := types.RecordFromRow(found)
	return &out, nil
}

func (s *Sheets) Close() error { return nil }

func sheetsError(op string, err error) error {
	if gerr, ok := err.(*googleapi.Error); ok {
		return &provider.Error{Provider: "sheets", Op: op, StatusCode: gerr.Code, Body: gerr.Message}
	}
	return provider.Wrap("sheets", op, err)
}
