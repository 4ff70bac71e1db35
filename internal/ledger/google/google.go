// Package google implements the ledger store on Google Sheets. Each
// tenant has one "report" spreadsheet inside its Drive folder with two
// regions: a Budget sheet (rows keyed by stable category id, one column
// per month) and an append-only Raw Data sheet.
package google

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetflow/internal/core"
	"budgetflow/internal/gapi"
	"budgetflow/internal/ledger"
	"budgetflow/internal/taxonomy"
)

const (
	budgetSheet  = "Budget"
	rawDataSheet = "Raw Data"

	headerCategoryID   = "Category ID"
	headerCategoryName = "Category Name"

	mimeSpreadsheet = "application/vnd.google-apps.spreadsheet"
)

// Store is a Sheets-backed ledger.Store.
type Store struct {
	sheets     *gsheet.Service
	drive      *drive.Service
	reportName string
	taxonomy   *taxonomy.Taxonomy

	// rowCache maps reportID -> categoryID -> 1-based Budget row. Filled
	// by ValidateStructure, which always runs before any cell access.
	mu       sync.Mutex
	rowCache map[string]map[string]int64
}

var _ ledger.Store = (*Store)(nil)

// New builds the Sheets ledger store. Credentials come from the
// environment via gapi.CredentialOptions.
func New(ctx context.Context, reportName string, tax *taxonomy.Taxonomy, extra ...option.ClientOption) (*Store, error) {
	opts, err := gapi.CredentialOptions(ctx)
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)

	sheetsSvc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Store{
		sheets:     sheetsSvc,
		drive:      driveSvc,
		reportName: reportName,
		taxonomy:   tax,
		rowCache:   make(map[string]map[string]int64),
	}, nil
}

// EnsureReport locates the tenant's report spreadsheet inside its folder,
// creating and seeding it when absent, and repairs missing sheets on
// existing reports.
func (s *Store) EnsureReport(ctx context.Context, t *core.Tenant) error {
	if t.ReportID != "" {
		return s.ensureSheets(ctx, t.ReportID)
	}

	query := fmt.Sprintf("'%s' in parents and name='%s' and mimeType='%s' and trashed=false",
		t.FolderID, s.reportName, mimeSpreadsheet)
	res, err := s.drive.Files.List().Q(query).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return gapi.WrapErr(fmt.Errorf("find report: %w", err))
	}
	if len(res.Files) > 0 {
		t.ReportID = res.Files[0].Id
		return s.ensureSheets(ctx, t.ReportID)
	}

	reportID, err := s.createReport(ctx, t.FolderID)
	if err != nil {
		return err
	}
	t.ReportID = reportID
	return nil
}

func (s *Store) createReport(ctx context.Context, folderID string) (string, error) {
	created, err := s.sheets.Spreadsheets.Create(&gsheet.Spreadsheet{
		Properties: &gsheet.SpreadsheetProperties{Title: s.reportName},
		Sheets: []*gsheet.Sheet{
			{Properties: &gsheet.SheetProperties{Title: budgetSheet}},
			{Properties: &gsheet.SheetProperties{Title: rawDataSheet}},
		},
	}).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return "", gapi.WrapErr(fmt.Errorf("create report: %w", err))
	}
	reportID := created.SpreadsheetId

	// Spreadsheets are created in the Drive root; move into the tenant
	// folder.
	file, err := s.drive.Files.Get(reportID).Fields("parents").Context(ctx).Do()
	if err != nil {
		return "", gapi.WrapErr(fmt.Errorf("read report parents: %w", err))
	}
	_, err = s.drive.Files.Update(reportID, nil).
		AddParents(folderID).
		RemoveParents(strings.Join(file.Parents, ",")).
		Fields("id, parents").
		Context(ctx).Do()
	if err != nil {
		return "", gapi.WrapErr(fmt.Errorf("move report to tenant folder: %w", err))
	}

	if err := s.seedBudgetSheet(ctx, reportID); err != nil {
		return "", err
	}
	if err := s.seedRawDataSheet(ctx, reportID); err != nil {
		return "", err
	}
	return reportID, nil
}

// ensureSheets repairs a report whose Budget or Raw Data sheet was
// deleted.
func (s *Store) ensureSheets(ctx context.Context, reportID string) error {
	meta, err := s.sheets.Spreadsheets.Get(reportID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return gapi.WrapErr(fmt.Errorf("read report sheets: %w", err))
	}

	have := make(map[string]bool)
	for _, sh := range meta.Sheets {
		have[sh.Properties.Title] = true
	}

	var requests []*gsheet.Request
	if !have[budgetSheet] {
		requests = append(requests, &gsheet.Request{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: budgetSheet}},
		})
	}
	if !have[rawDataSheet] {
		requests = append(requests, &gsheet.Request{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: rawDataSheet}},
		})
	}
	if len(requests) == 0 {
		return nil
	}

	_, err = s.sheets.Spreadsheets.BatchUpdate(reportID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return gapi.WrapErr(fmt.Errorf("repair report sheets: %w", err))
	}

	if !have[budgetSheet] {
		if err := s.seedBudgetSheet(ctx, reportID); err != nil {
			return err
		}
	}
	if !have[rawDataSheet] {
		if err := s.seedRawDataSheet(ctx, reportID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seedBudgetSheet(ctx context.Context, reportID string) error {
	header := []interface{}{headerCategoryID, headerCategoryName}
	for m := 1; m <= 12; m++ {
		header = append(header, fmt.Sprintf("Month %d", m))
	}

	values := [][]interface{}{header}
	for _, c := range s.taxonomy.Categories() {
		row := []interface{}{c.ID, c.Name}
		for m := 1; m <= 12; m++ {
			row = append(row, "0")
		}
		values = append(values, row)
	}

	_, err := s.sheets.Spreadsheets.Values.Update(reportID, budgetSheet+"!A1", &gsheet.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return gapi.WrapErr(fmt.Errorf("seed budget sheet: %w", err))
	}
	return nil
}

func (s *Store) seedRawDataSheet(ctx context.Context, reportID string) error {
	_, err := s.sheets.Spreadsheets.Values.Update(reportID, rawDataSheet+"!A1", &gsheet.ValueRange{
		Values: [][]interface{}{{"Date", "Description", "Amount", "Category", "Committed At", "Source File"}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return gapi.WrapErr(fmt.Errorf("seed raw data sheet: %w", err))
	}
	return nil
}

// ValidateStructure checks the report against what the updater needs: the
// two sheets present, the category-identifier column where expected, and
// twelve month columns. Drift is core.ErrStructural — a hard stop for the
// tenant. On success the category row index is (re)built.
func (s *Store) ValidateStructure(ctx context.Context, reportID string) error {
	meta, err := s.sheets.Spreadsheets.Get(reportID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return gapi.WrapErr(fmt.Errorf("read report sheets: %w", err))
	}
	have := make(map[string]bool)
	for _, sh := range meta.Sheets {
		have[sh.Properties.Title] = true
	}
	if !have[budgetSheet] || !have[rawDataSheet] {
		return fmt.Errorf("%w: report %s missing required sheets", core.ErrStructural, reportID)
	}

	res, err := s.sheets.Spreadsheets.Values.Get(reportID, budgetSheet+"!A1:N").Context(ctx).Do()
	if err != nil {
		return gapi.WrapErr(fmt.Errorf("read budget sheet: %w", err))
	}
	if len(res.Values) == 0 {
		return fmt.Errorf("%w: budget sheet is empty", core.ErrStructural)
	}

	header := res.Values[0]
	if len(header) < 14 ||
		fmt.Sprint(header[0]) != headerCategoryID ||
		fmt.Sprint(header[1]) != headerCategoryName {
		return fmt.Errorf("%w: budget header altered (want %q, %q and 12 month columns)",
			core.ErrStructural, headerCategoryID, headerCategoryName)
	}

	rows := make(map[string]int64)
	for i, row := range res.Values[1:] {
		if len(row) == 0 {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(row[0]))
		if id != "" {
			rows[id] = int64(i + 2) // 1-based, after header
		}
	}

	s.mu.Lock()
	s.rowCache[reportID] = rows
	s.mu.Unlock()
	return nil
}

func (s *Store) categoryRow(reportID, categoryID string) (int64, error) {
	s.mu.Lock()
	row, ok := s.rowCache[reportID][categoryID]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: category %s has no row in report %s", core.ErrStructural, categoryID, reportID)
	}
	return row, nil
}

// cellRange addresses (category row, month) in A1 notation. Month columns
// start at C.
func cellRange(row int64, month time.Month) string {
	return fmt.Sprintf("%s!%s%d", budgetSheet, colLetter(2+int(month)-1), row)
}

// colLetter converts a 0-indexed column to its A1 letter form.
func colLetter(index int) string {
	result := ""
	for index >= 0 {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
	}
	return result
}

func (s *Store) ReadCell(ctx context.Context, reportID, categoryID string, month time.Month) (decimal.Decimal, error) {
	row, err := s.categoryRow(reportID, categoryID)
	if err != nil {
		return decimal.Zero, err
	}

	res, err := s.sheets.Spreadsheets.Values.Get(reportID, cellRange(row, month)).Context(ctx).Do()
	if err != nil {
		return decimal.Zero, gapi.WrapErr(fmt.Errorf("read cell (%s, %s): %w", categoryID, month, err))
	}
	if len(res.Values) == 0 || len(res.Values[0]) == 0 {
		return decimal.Zero, nil
	}
	return core.ParseCellAmount(fmt.Sprint(res.Values[0][0])), nil
}

func (s *Store) WriteCell(ctx context.Context, reportID, categoryID string, month time.Month, value decimal.Decimal) error {
	row, err := s.categoryRow(reportID, categoryID)
	if err != nil {
		return err
	}

	_, err = s.sheets.Spreadsheets.Values.Update(reportID, cellRange(row, month), &gsheet.ValueRange{
		Values: [][]interface{}{{value.String()}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return gapi.WrapErr(fmt.Errorf("write cell (%s, %s): %w", categoryID, month, err))
	}
	return nil
}

func (s *Store) AppendDetails(ctx context.Context, reportID string, rows []ledger.DetailRow) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([][]interface{}, 0, len(rows))
	for _, r := range rows {
		values = append(values, []interface{}{
			r.Date.Format("2006-01-02"),
			r.Description,
			r.Amount.String(),
			r.CategoryID,
			r.CommittedAt.Format("2006-01-02 15:04:05"),
			r.SourceName,
		})
	}

	_, err := s.sheets.Spreadsheets.Values.Append(reportID, rawDataSheet+"!A2", &gsheet.ValueRange{
		Values: values,
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return gapi.WrapErr(fmt.Errorf("append detail rows: %w", err))
	}
	return nil
}
