//go:build integration

package google

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/config"
	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_Export(t *testing.T) {
	cfg := config.Load()
	if err := cfg.ValidateExport(); err != nil {
		t.Skipf("export not configured: %v", err)
	}

	ctx := context.Background()
	client, err := NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ref, err := client.AppendTransaction(ctx, []ports.TransactionRow{{
		TransactionID: 1,
		Date:          core.DateOf(time.Now()),
		Description:   "integration test",
		Type:          core.Expense,
		Amount:        decimal.RequireFromString("1.23"),
		Category:      "Test",
		PaymentMethod: "Cash",
	}})
	if err != nil {
		t.Fatalf("AppendTransaction: %v", err)
	}
	t.Logf("appended %s", ref)

	entries := []core.BudgetSpending{core.NewBudgetSpending(core.Budget{
		ID:         1,
		CategoryID: 1,
		Amount:     decimal.NewFromInt(100),
		StartDate:  core.NewDate(2026, 1, 1),
		EndDate:    core.NewDate(2026, 12, 31),
	}, decimal.NewFromInt(85))}
	err = client.WriteBudgetReport(ctx, 0, ports.BudgetReportSheet{
		Report:      core.NewBudgetReport(entries),
		Categories:  map[int64]string{1: "Test"},
		GeneratedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("WriteBudgetReport: %v", err)
	}
}
