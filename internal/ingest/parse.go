package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/avolkov/finpulse/internal/domain"
)

// ErrNoAmountColumn is returned when no header resolves to an amount, debit
// or credit column. This is fatal for the whole file; no rows are processed.
var ErrNoAmountColumn = errors.New("ingest: no amount column resolved")

// RowError records why one row was rejected. Rejected rows never abort the
// batch.
type RowError struct {
	Row    int    `json:"row"` // 1-based, excluding the header line
	Reason string `json:"reason"`
}

// Result is the outcome of ingesting one file: normalized transactions plus
// the per-row rejection report.
type Result struct {
	Accepted []domain.Transaction `json:"accepted"`
	Rejected []RowError           `json:"rejected"`
}

// AcceptedCount returns the number of normalized transactions.
func (r Result) AcceptedCount() int { return len(r.Accepted) }

// RejectedCount returns the number of rejected rows.
func (r Result) RejectedCount() int { return len(r.Rejected) }

// Ordered list of date layouts tried per cell; the first parse wins.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02-01-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2006-01-02T15:04:05Z07:00",
}

var (
	currencyGlyphs = regexp.MustCompile(`[₹$€£,\s]`)
	multiSpace     = regexp.MustCompile(`\s+`)
)

const maxDescriptionLen = 500

// Parse normalizes raw statement rows into transactions for userID. Each
// rows[i] must be aligned with headers. Column resolution happens once up
// front; a file with no resolvable amount column fails with ErrNoAmountColumn
// before any row is touched.
func Parse(userID string, headers []string, rows [][]string) (Result, error) {
	cols := resolveColumns(headers)
	if !cols.hasAmount() {
		return Result{}, fmt.Errorf("%w (headers: %s)", ErrNoAmountColumn, strings.Join(headers, ", "))
	}

	var res Result
	for i, row := range rows {
		rowNo := i + 1

		tx, err := parseRow(userID, cols, row)
		if err != nil {
			res.Rejected = append(res.Rejected, RowError{Row: rowNo, Reason: err.Error()})
			continue
		}
		res.Accepted = append(res.Accepted, tx)
	}
	return res, nil
}

func parseRow(userID string, cols columnMap, row []string) (domain.Transaction, error) {
	date, err := parseRowDate(cols, row)
	if err != nil {
		return domain.Transaction{}, err
	}

	amount, isIncome, err := parseRowAmount(cols, row)
	if err != nil {
		return domain.Transaction{}, err
	}

	desc := ""
	if cols.desc >= 0 && cols.desc < len(row) {
		desc = cleanDescription(row[cols.desc])
	}
	if desc == "" {
		desc = domain.SynthesizeDescription(date, amount)
	}

	return domain.Transaction{
		UserID:      userID,
		Date:        date,
		Description: desc,
		Amount:      amount,
		IsIncome:    isIncome,
		Source:      domain.SourceCSV,
	}, nil
}

func parseRowDate(cols columnMap, row []string) (time.Time, error) {
	if cols.date < 0 || cols.date >= len(row) {
		return time.Time{}, errors.New("missing date value")
	}
	return ParseDate(row[cols.date])
}

// ParseDate tries each known layout in order.
func ParseDate(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", value)
}

// parseRowAmount applies the sign convention: separate debit/credit columns
// make debits negative and credits positive; a single signed amount column
// is taken as-is with income inferred from the sign.
func parseRowAmount(cols columnMap, row []string) (decimal.Decimal, bool, error) {
	if cols.debit >= 0 || cols.credit >= 0 {
		if v, ok := cellAt(row, cols.debit); ok {
			amt, err := ParseAmount(v)
			if err != nil {
				return decimal.Zero, false, fmt.Errorf("debit column: %w", err)
			}
			return amt.Abs().Neg(), false, nil
		}
		if v, ok := cellAt(row, cols.credit); ok {
			amt, err := ParseAmount(v)
			if err != nil {
				return decimal.Zero, false, fmt.Errorf("credit column: %w", err)
			}
			return amt.Abs(), true, nil
		}
		if cols.amount < 0 {
			return decimal.Zero, false, errors.New("empty debit and credit values")
		}
	}

	v, ok := cellAt(row, cols.amount)
	if !ok {
		return decimal.Zero, false, errors.New("missing amount value")
	}
	amt, err := ParseAmount(v)
	if err != nil {
		return decimal.Zero, false, err
	}
	return amt, amt.IsPositive(), nil
}

func cellAt(row []string, idx int) (string, bool) {
	if idx < 0 || idx >= len(row) {
		return "", false
	}
	v := strings.TrimSpace(row[idx])
	return v, v != ""
}

// ParseAmount parses a signed amount, stripping currency glyphs and
// thousands separators and honoring accounting-style parenthesized
// negatives.
func ParseAmount(value string) (decimal.Decimal, error) {
	cleaned := currencyGlyphs.ReplaceAllString(strings.TrimSpace(value), "")
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + cleaned[1:len(cleaned)-1]
	}
	if cleaned == "" {
		return decimal.Zero, errors.New("empty amount")
	}
	amt, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparsable amount %q", value)
	}
	return amt, nil
}

func cleanDescription(value string) string {
	desc := multiSpace.ReplaceAllString(strings.TrimSpace(value), " ")
	if len(desc) > maxDescriptionLen {
		// Cut on a rune boundary so a multi-byte character is never split.
		cut := maxDescriptionLen
		for cut > 0 && !utf8.RuneStart(desc[cut]) {
			cut--
		}
		desc = desc[:cut]
	}
	return desc
}
