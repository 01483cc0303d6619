package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/log"
	ports "fintrack/internal/sheets"
)

const defaultRowCacheTTL = 2 * time.Minute

var transactionHeader = []any{"Transaction", "Date", "Description", "Type", "Amount", "Category", "Payment method", "Friend", "Tags"}

// jsonUnmarshal is swapped in tests.
var jsonUnmarshal = json.Unmarshal

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base names without year; transaction sheets get the year of the row prefixed.
	transactionsBase string
	budgetsBase      string

	// appendMu serializes appends so two writers never compute the same next row.
	appendMu sync.Mutex

	mu                 sync.Mutex
	cachedSheet        string
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
	knownSheets        map[string]bool
}

// Ensure interface conformance
var (
	_ ports.TransactionWriter  = (*Client)(nil)
	_ ports.BudgetReportWriter = (*Client)(nil)
)

// NewClient creates a Sheets client from the export settings in cfg.
// Service account credentials win over an OAuth client and token.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.GoogleSpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		transactionsBase:   cfg.GoogleTransactionsSheet,
		budgetsBase:        cfg.GoogleBudgetsSheet,
		cacheValidDuration: defaultRowCacheTTL,
		knownSheets:        map[string]bool{},
	}, nil
}

func newSheetsService(ctx context.Context, cfg *config.Config) (*gsheet.Service, error) {
	// Token refreshes go through the pooled client too.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())

	client, err := authorizedClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", log.FieldComponent, log.ComponentSheets)
	return service, nil
}

func authorizedClient(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	saJSON, err := readCredential(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	if saJSON != nil {
		jwtCfg, err := oauthgoogle.JWTConfigFromJSON(saJSON, gsheet.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("service account config: %w", err)
		}
		slog.InfoContext(ctx, "Using service account credentials", "email", jwtCfg.Email)
		return jwtCfg.Client(ctx), nil
	}

	clientJSON, err := readCredential(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if clientJSON == nil {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	tokenJSON, err := readCredential(cfg.GoogleOAuthTokenJSON, cfg.GoogleOAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if tokenJSON == nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	oauthCfg, err := oauthgoogle.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := jsonUnmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	slog.InfoContext(ctx, "Using OAuth client credentials")
	return oauthCfg.Client(ctx, &tok), nil
}

// readCredential prefers the inline value over the file. Both empty is not an error.
func readCredential(inline, file string) ([]byte, error) {
	if v := strings.TrimSpace(inline); v != "" {
		return []byte(v), nil
	}
	if file = strings.TrimSpace(file); file == "" {
		return nil, nil
	}
	return os.ReadFile(file)
}

// newHTTPClientWithPooling creates an HTTP client optimized for Google Sheets API
// with connection pooling, proper timeouts, and keep-alive settings
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// AppendTransaction writes rows below the last used row of the year sheet
// matching the first row's date.
func (c *Client) AppendTransaction(ctx context.Context, rows []ports.TransactionRow) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	c.appendMu.Lock()
	defer c.appendMu.Unlock()

	sheet := yearPrefixedName(c.transactionsBase, rows[0].Date.Year())
	if err := c.ensureSheet(ctx, sheet, transactionHeader); err != nil {
		return "", err
	}

	nextRow, err := c.nextRow(ctx, sheet)
	if err != nil {
		return "", err
	}

	lastRow := nextRow + len(rows) - 1
	rng := fmt.Sprintf("%s!A%d:I%d", sheet, nextRow, lastRow)
	vr := &gsheet.ValueRange{Values: transactionValues(rows)}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		c.InvalidateRowCache()
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}

	c.storeRowCount(sheet, lastRow)
	return rng, nil
}

// WriteBudgetReport clears the user's report sheet and writes the report from A1.
func (c *Client) WriteBudgetReport(ctx context.Context, userID int64, sheet ports.BudgetReportSheet) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	name := budgetSheetName(c.budgetsBase, userID)
	if err := c.ensureSheet(ctx, name, nil); err != nil {
		return err
	}

	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, name+"!A:Z", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}

	vr := &gsheet.ValueRange{Values: budgetReportValues(sheet)}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, name+"!A1", vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ensureSheet adds the sheet tab when the spreadsheet does not have it yet
// and writes header as its first row.
func (c *Client) ensureSheet(ctx context.Context, title string, header []any) error {
	c.mu.Lock()
	known := c.knownSheets[title]
	c.mu.Unlock()
	if known {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	exists := false
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			exists = true
			break
		}
	}

	if !exists {
		req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}}}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("add sheet %s: %w", title, err)
		}
		if header != nil {
			vr := &gsheet.ValueRange{Values: [][]any{header}}
			_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, title+"!A1", vr).
				ValueInputOption("RAW").Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("write header %s: %w", title, err)
			}
		}
		slog.InfoContext(ctx, "Created sheet", log.FieldSheet, title)
		c.InvalidateRowCache()
	}

	c.mu.Lock()
	if c.knownSheets == nil {
		c.knownSheets = map[string]bool{}
	}
	c.knownSheets[title] = true
	c.mu.Unlock()
	return nil
}

// nextRow returns the first empty row of sheet, reading column A only when
// the cached count is stale or belongs to another sheet.
func (c *Client) nextRow(ctx context.Context, sheet string) (int, error) {
	if next, ok := c.cachedNextRow(sheet); ok {
		return next, nil
	}

	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get sheet dimensions for %s: %w", sheet, err)
	}
	c.storeRowCount(sheet, len(resp.Values))
	return len(resp.Values) + 1, nil
}

func (c *Client) cachedNextRow(sheet string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cachedSheet != sheet || !time.Now().Before(c.cacheExpiresAt) {
		return 0, false
	}
	return c.cachedRowCount + 1, true
}

func (c *Client) storeRowCount(sheet string, rows int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedSheet = sheet
	c.cachedRowCount = rows
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
}

// InvalidateRowCache forces the next append to re-read the sheet size.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheExpiresAt = time.Time{}
}

func transactionValues(rows []ports.TransactionRow) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{
			r.TransactionID,
			r.Date.String(),
			r.Description,
			string(r.Type),
			core.FormatAmount(r.Amount),
			r.Category,
			r.PaymentMethod,
			r.Friend,
			strings.Join(r.Tags, ", "),
		})
	}
	return out
}

func budgetReportValues(sheet ports.BudgetReportSheet) [][]any {
	rep := sheet.Report
	out := [][]any{
		{"Budget", "Category", "Start", "End", "Amount", "Spent", "Remaining", "Used %", "Status"},
	}
	for _, e := range rep.Entries {
		category := sheet.Categories[e.CategoryID]
		if category == "" {
			category = strconv.FormatInt(e.CategoryID, 10)
		}
		out = append(out, []any{
			e.BudgetID,
			category,
			e.StartDate.String(),
			e.EndDate.String(),
			core.FormatAmount(e.Amount),
			core.FormatAmount(e.SpentAmount),
			core.FormatAmount(e.RemainingAmount),
			e.PercentageUsed.StringFixed(1),
			budgetStatus(e),
		})
	}
	out = append(out,
		[]any{},
		[]any{"Total", "", "", "",
			core.FormatAmount(rep.TotalBudgeted),
			core.FormatAmount(rep.TotalSpent),
			core.FormatAmount(rep.TotalBudgeted.Sub(rep.TotalSpent)),
			"",
			fmt.Sprintf("%d over, %d near limit", rep.OverBudget, rep.NearLimit)},
	)
	if !sheet.GeneratedAt.IsZero() {
		out = append(out, []any{"Generated", sheet.GeneratedAt.UTC().Format(time.RFC3339)})
	}
	return out
}

func budgetStatus(e core.BudgetSpending) string {
	switch {
	case e.IsOverBudget:
		return "over budget"
	case e.IsNearLimit:
		return "near limit"
	default:
		return "ok"
	}
}

// budgetSheetName gives every user a report tab of their own.
func budgetSheetName(base string, userID int64) string {
	return fmt.Sprintf("%s #%d", strings.TrimSpace(base), userID)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
