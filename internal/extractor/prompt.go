package extractor

import "strings"

// buildPrompt renders the extraction instructions with the category list
// embedded. The model must answer with each transaction's category ID,
// not its display name, since the ledger is keyed by ID.
func buildPrompt(categoryList []string) string {
	var b strings.Builder
	b.WriteString(`You are a financial transaction parser for bank and card statements (any language, including RTL scripts).

Analyze this PDF statement and extract ALL transactions from ALL pages.

Categories (answer with the ID on the left, EXACTLY as written):
`)
	for _, line := range categoryList {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(`
For each transaction provide:
- "date": DD/MM/YYYY format
- "description": the original description, unmodified
- "amount": a number, negative for expenses, positive for income
- "category": one of the category IDs above

Return ONLY a valid JSON object of this shape:
{"transactions": [{"date": "DD/MM/YYYY", "description": "...", "amount": -123.45, "category": "VAR001"}]}

Do not include explanations or markdown formatting, just the JSON object.`)
	return b.String()
}
