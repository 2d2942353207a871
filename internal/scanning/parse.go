package scanning

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/zombor/billscan/internal/bill"
)

// billScanPrompt is the shared prompt used by all LLM providers for reading bills
var billScanPrompt = `You are analyzing a bill or invoice document. Carefully read all text in the image and extract:

1. **vendor**: the company that issued the bill, usually in the header.
2. **bill_number**: the invoice or bill number printed by the vendor.
3. **issue_date**: the date the bill was issued, as YYYY-MM-DD.
4. **due_date**: the payment due date, as YYYY-MM-DD.
5. **amount**: the total amount due as a number (e.g. 149.87 for $149.87).
6. **category**: one of ` + strings.Join(bill.CategoryNames(), ", ") + `.
7. **line_items**: each charge as {"description": "...", "amount": 0.00}.

Return ONLY valid JSON in this exact format:
{
  "vendor": "Vendor Name",
  "bill_number": "INV-0000",
  "issue_date": "YYYY-MM-DD",
  "due_date": "YYYY-MM-DD",
  "amount": 0.00,
  "category": "Utility",
  "line_items": [{"description": "Charge", "amount": 0.00}]
}

Important:
- If you cannot find a field, use null for that field. Never guess.
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

const draftSchemaJSON = `{
  "type": "object",
  "properties": {
    "vendor":      {"type": ["string", "null"]},
    "bill_number": {"type": ["string", "null"]},
    "issue_date":  {"type": ["string", "null"]},
    "due_date":    {"type": ["string", "null"]},
    "amount":      {"type": ["number", "string", "null"]},
    "category":    {"type": ["string", "null"]},
    "line_items": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "description": {"type": ["string", "null"]},
          "amount":      {"type": ["number", "string", "null"]}
        }
      }
    }
  }
}`

var draftSchema = jsonschema.MustCompileString("bill-draft.json", draftSchemaJSON)

type rawLineItem struct {
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
}

type rawDraft struct {
	Vendor     *string          `json:"vendor"`
	BillNumber *string          `json:"bill_number"`
	IssueDate  *string          `json:"issue_date"`
	DueDate    *string          `json:"due_date"`
	Amount     *decimal.Decimal `json:"amount"`
	Category   *string          `json:"category"`
	LineItems  []rawLineItem    `json:"line_items"`
}

// extractJSONObject strips markdown fences and surrounding chatter from a model reply
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

// parseDraftJSON parses a model reply into a draft. Values that cannot be
// interpreted are dropped, never replaced with a guess.
func parseDraftJSON(text string) (*bill.Draft, error) {
	object, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	var generic any
	if err := json.Unmarshal([]byte(object), &generic); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling json: %w", ErrUnreadable, err)
	}
	if err := draftSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: json does not match schema: %w", ErrUnreadable, err)
	}

	var raw rawDraft
	if err := json.Unmarshal([]byte(object), &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding draft: %w", ErrUnreadable, err)
	}

	draft := &bill.Draft{
		Vendor:     deref(raw.Vendor),
		BillNumber: deref(raw.BillNumber),
		Amount:     raw.Amount,
		IssueDate:  parseOptionalDate("issue_date", raw.IssueDate),
		DueDate:    parseOptionalDate("due_date", raw.DueDate),
	}
	if name := strings.TrimSpace(deref(raw.Category)); name != "" {
		category, ok := bill.ParseCategory(name)
		if !ok {
			slog.Debug("Unrecognized category, filing as Other", "category", name)
		}
		draft.Category = &category
	}
	for _, item := range raw.LineItems {
		description := strings.TrimSpace(deref(item.Description))
		if description == "" || item.Amount == nil {
			continue
		}
		draft.LineItems = append(draft.LineItems, bill.LineItem{Description: description, Amount: *item.Amount})
	}
	return draft, nil
}

func parseOptionalDate(field string, value *string) *time.Time {
	s := strings.TrimSpace(deref(value))
	if s == "" {
		return nil
	}
	d, err := bill.ParseDate(s)
	if err != nil {
		slog.Debug("Dropping unparseable date", "field", field, "value", s)
		return nil
	}
	return &d
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
