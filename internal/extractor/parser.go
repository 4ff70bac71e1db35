package extractor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
)

// rawTransaction mirrors the JSON record the model is asked to produce.
type rawTransaction struct {
	Date        string      `json:"date"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	Category    string      `json:"category"`
}

type response struct {
	Transactions []rawTransaction `json:"transactions"`
}

var dateLayouts = []string{"02/01/2006", "2006-01-02"}

// parseResponse validates the raw model output into typed records. Any
// shape violation is a content failure for the whole document; a dynamic
// best-effort traversal is exactly what this must not be.
func parseResponse(text string) ([]rawTransaction, error) {
	cleaned := stripFences(text)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	var resp response
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: unparseable inference response: %v", core.ErrContent, err)
	}
	if len(resp.Transactions) == 0 {
		return nil, fmt.Errorf("%w: inference response contains no transactions", core.ErrContent)
	}
	return resp.Transactions, nil
}

// stripFences removes a markdown code fence if the model ignored the
// no-markdown instruction.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 3 {
		return s
	}
	body := strings.Join(lines[1:len(lines)-1], "\n")
	return strings.TrimSpace(strings.TrimPrefix(body, "json"))
}

// toTransaction converts one validated record, or reports why it cannot
// be used. Category resolution happens separately.
func (r rawTransaction) toTransaction(sourceName string) (core.Transaction, error) {
	var date time.Time
	var err error
	for _, layout := range dateLayouts {
		if date, err = time.Parse(layout, r.Date); err == nil {
			break
		}
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("unrecognized date %q", r.Date)
	}

	if strings.TrimSpace(r.Description) == "" {
		return core.Transaction{}, fmt.Errorf("empty description")
	}

	amount, err := decimal.NewFromString(r.Amount.String())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("unparseable amount %q", r.Amount.String())
	}

	return core.Transaction{
		Date:        date,
		Description: strings.TrimSpace(r.Description),
		Amount:      amount,
		SourceName:  sourceName,
	}, nil
}
