package ingest

import "strings"

// ColumnKind tags what a statement column holds once its header has been
// matched against the synonym table.
type ColumnKind int

const (
	ColumnUnmatched ColumnKind = iota
	ColumnDate
	ColumnDescription
	ColumnAmount
	ColumnDebit
	ColumnCredit
)

// Header synonyms, matched case/whitespace-insensitively. Banks disagree on
// everything, so this list grows as new exports show up.
var columnSynonyms = map[string]ColumnKind{
	"date":             ColumnDate,
	"txn date":         ColumnDate,
	"txn_date":         ColumnDate,
	"transaction date": ColumnDate,
	"transaction_date": ColumnDate,
	"posted date":      ColumnDate,
	"posted_date":      ColumnDate,
	"posting date":     ColumnDate,
	"value date":       ColumnDate,
	"time":             ColumnDate,
	"datetime":         ColumnDate,
	"timestamp":        ColumnDate,

	"description": ColumnDescription,
	"desc":        ColumnDescription,
	"payee":       ColumnDescription,
	"merchant":    ColumnDescription,
	"narrative":   ColumnDescription,
	"narration":   ColumnDescription,
	"details":     ColumnDescription,
	"particulars": ColumnDescription,
	"memo":        ColumnDescription,

	"amount":     ColumnAmount,
	"value":      ColumnAmount,
	"sum":        ColumnAmount,
	"txn amount": ColumnAmount,
	"txn_amount": ColumnAmount,

	"debit":    ColumnDebit,
	"paid out": ColumnDebit,
	"paid":     ColumnDebit,

	"credit":   ColumnCredit,
	"paid in":  ColumnCredit,
	"received": ColumnCredit,
}

// ClassifyHeader maps one raw header to a column kind.
func ClassifyHeader(header string) ColumnKind {
	key := strings.ToLower(strings.Join(strings.Fields(header), " "))
	if kind, ok := columnSynonyms[key]; ok {
		return kind
	}
	return ColumnUnmatched
}

// columnMap holds the resolved index of each field in a row. An index of -1
// means the column is absent.
type columnMap struct {
	date   int
	desc   int
	amount int
	debit  int
	credit int
}

// hasAmount reports whether any column can yield an amount. Without one the
// whole file is unusable.
func (m columnMap) hasAmount() bool {
	return m.amount >= 0 || m.debit >= 0 || m.credit >= 0
}

// resolveColumns matches each header against the synonym table. The first
// header matching a kind wins.
func resolveColumns(headers []string) columnMap {
	m := columnMap{date: -1, desc: -1, amount: -1, debit: -1, credit: -1}
	for i, h := range headers {
		switch ClassifyHeader(h) {
		case ColumnDate:
			if m.date < 0 {
				m.date = i
			}
		case ColumnDescription:
			if m.desc < 0 {
				m.desc = i
			}
		case ColumnAmount:
			if m.amount < 0 {
				m.amount = i
			}
		case ColumnDebit:
			if m.debit < 0 {
				m.debit = i
			}
		case ColumnCredit:
			if m.credit < 0 {
				m.credit = i
			}
		}
	}
	return m
}
