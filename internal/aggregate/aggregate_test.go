package aggregate

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
)

func tx(date string, desc string, amount string, categoryID string) core.Transaction {
	d, err := time.Parse("02/01/2006", date)
	if err != nil {
		panic(err)
	}
	return core.Transaction{
		Date:        d,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		CategoryID:  categoryID,
	}
}

func TestAggregateEmpty(t *testing.T) {
	_, err := Aggregate("h1", nil)
	if !errors.Is(err, ErrNoTransactions) {
		t.Fatalf("expected ErrNoTransactions, got %v", err)
	}
}

func TestAggregateSingleMonth(t *testing.T) {
	delta, err := Aggregate("h1", []core.Transaction{
		tx("01/05/2025", "Shop X", "-150.00", "VAR001"),
		tx("03/05/2025", "Employer", "5000.00", "INC001"),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if delta.TenantID != "h1" {
		t.Fatalf("tenant = %s", delta.TenantID)
	}
	if delta.Month != time.May {
		t.Fatalf("month = %s, want May", delta.Month)
	}
	if len(delta.Totals) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(delta.Totals))
	}
	if !delta.Totals["VAR001"].Equal(decimal.RequireFromString("-150.00")) {
		t.Errorf("VAR001 = %s", delta.Totals["VAR001"])
	}
	if !delta.Totals["INC001"].Equal(decimal.RequireFromString("5000.00")) {
		t.Errorf("INC001 = %s", delta.Totals["INC001"])
	}
}

func TestAggregateSumsPerCategory(t *testing.T) {
	delta, err := Aggregate("h1", []core.Transaction{
		tx("02/05/2025", "Groceries A", "-100.10", "VAR001"),
		tx("09/05/2025", "Groceries B", "-49.90", "VAR001"),
		tx("15/05/2025", "Refund", "20.00", "VAR001"),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !delta.Totals["VAR001"].Equal(decimal.RequireFromString("-130.00")) {
		t.Fatalf("VAR001 = %s, want -130.00", delta.Totals["VAR001"])
	}
}

func TestAggregateMajorityMonth(t *testing.T) {
	delta, err := Aggregate("h1", []core.Transaction{
		tx("30/04/2025", "Late April charge", "-10.00", "VAR002"),
		tx("01/05/2025", "Shop", "-20.00", "VAR001"),
		tx("02/05/2025", "Shop", "-30.00", "VAR001"),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if delta.Month != time.May {
		t.Fatalf("month = %s, want May", delta.Month)
	}
}

func TestAggregateMonthTieBreaksEarliest(t *testing.T) {
	delta, err := Aggregate("h1", []core.Transaction{
		tx("15/03/2025", "March", "-10.00", "VAR001"),
		tx("15/07/2025", "July", "-10.00", "VAR001"),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if delta.Month != time.March {
		t.Fatalf("month = %s, want March (earliest tied month)", delta.Month)
	}
}

func TestAggregateExactDecimals(t *testing.T) {
	// 0.1 + 0.2 must be exactly 0.3, not a float approximation.
	delta, err := Aggregate("h1", []core.Transaction{
		tx("01/06/2025", "a", "0.1", "OTH001"),
		tx("01/06/2025", "b", "0.2", "OTH001"),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if got := delta.Totals["OTH001"].String(); got != "0.3" {
		t.Fatalf("sum = %s, want 0.3", got)
	}
}
