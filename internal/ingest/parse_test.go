package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/finpulse/internal/domain"
)

func TestParse_SignedAmountColumn(t *testing.T) {
	headers := []string{"Txn Date", "Narration", "Amount"}
	rows := [][]string{
		{"2024-05-01", "SALARY CREDIT", "45000.00"},
		{"2024-05-02", "BIGBAZAAR GROCERY", "-1250.50"},
	}

	res, err := Parse("user-1", headers, rows)
	require.NoError(t, err)
	require.Len(t, res.Accepted, 2)
	assert.Empty(t, res.Rejected)

	assert.True(t, res.Accepted[0].IsIncome)
	assert.Equal(t, "45000.00", res.Accepted[0].Amount.StringFixed(2))

	assert.False(t, res.Accepted[1].IsIncome)
	assert.Equal(t, "-1250.50", res.Accepted[1].Amount.StringFixed(2))
	assert.Equal(t, domain.SourceCSV, res.Accepted[1].Source)
}

func TestParse_DebitCreditColumns(t *testing.T) {
	headers := []string{"Value Date", "Particulars", "Debit", "Credit"}
	rows := [][]string{
		{"01/05/2024", "RENT PAYMENT", "15000", ""},
		{"02/05/2024", "REFUND AMAZON", "", "499"},
	}

	res, err := Parse("user-1", headers, rows)
	require.NoError(t, err)
	require.Len(t, res.Accepted, 2)

	// Debit is an expense: negative, not income.
	assert.Equal(t, "-15000.00", res.Accepted[0].Amount.StringFixed(2))
	assert.False(t, res.Accepted[0].IsIncome)

	// Credit is income: positive.
	assert.Equal(t, "499.00", res.Accepted[1].Amount.StringFixed(2))
	assert.True(t, res.Accepted[1].IsIncome)
}

func TestParse_NoAmountColumnIsFatal(t *testing.T) {
	headers := []string{"Date", "Description", "Notes"}
	rows := [][]string{{"2024-05-01", "COFFEE", "n/a"}}

	_, err := Parse("user-1", headers, rows)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAmountColumn)
}

func TestParse_SynthesizedDescription(t *testing.T) {
	headers := []string{"Date", "Amount"}
	rows := [][]string{{"2024-05-01", "-250"}}

	res, err := Parse("user-1", headers, rows)
	require.NoError(t, err)
	require.Len(t, res.Accepted, 1)

	tx := res.Accepted[0]
	assert.NotEmpty(t, tx.Description)
	assert.Contains(t, tx.Description, "2024-05-01")
	assert.False(t, tx.IsIncome)
}

func TestParse_BadRowsRejectedBatchContinues(t *testing.T) {
	headers := []string{"Date", "Description", "Amount"}
	rows := [][]string{
		{"2024-05-01", "OK ROW", "-100"},
		{"NOTADATE", "BAD DATE", "-100"},
		{"2024-05-03", "BAD AMOUNT", "??"},
		{"2024-05-04", "ALSO OK", "-42.00"},
	}

	res, err := Parse("user-1", headers, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, res.AcceptedCount())
	require.Equal(t, 2, res.RejectedCount())
	assert.Equal(t, 2, res.Rejected[0].Row)
	assert.Contains(t, res.Rejected[0].Reason, "date")
	assert.Equal(t, 3, res.Rejected[1].Row)
	assert.Contains(t, res.Rejected[1].Reason, "amount")
}

func TestCleanDescription_TruncatesOnRuneBoundary(t *testing.T) {
	// 200 three-byte runes make 600 bytes; the 500-byte cap lands mid-rune.
	long := strings.Repeat("€", 200)

	got := cleanDescription(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("€", 166), got)
}

func TestParse_Idempotent(t *testing.T) {
	headers := []string{"Date", "Description", "Amount"}
	rows := [][]string{
		{"2024-05-01", "A", "-1"},
		{"bad", "B", "-2"},
		{"2024-05-03", "C", "3"},
	}

	first, err := Parse("user-1", headers, rows)
	require.NoError(t, err)
	second, err := Parse("user-1", headers, rows)
	require.NoError(t, err)

	assert.Equal(t, first.AcceptedCount(), second.AcceptedCount())
	assert.Equal(t, first.RejectedCount(), second.RejectedCount())
}

func TestParseDate_Formats(t *testing.T) {
	tests := []struct {
		in      string
		wantDay int
		wantErr bool
	}{
		{"2024-05-01", 1, false},
		{"15/05/2024", 15, false},
		{"2024/05/09", 9, false},
		{"May 7, 2024", 7, false},
		{"7 May 2024", 7, false},
		{"not a date", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDay, got.Day())
		})
	}
}

func TestParseAmount_Cleaning(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1,250.00", "1250.00"},
		{"₹500", "500.00"},
		{"$ 12.34", "12.34"},
		{"(99.50)", "-99.50"},
		{"-42", "-42.00"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestParseCSV(t *testing.T) {
	data := "Date,Payee,Amount\n" +
		"2024-05-01,GROCERY STORE,-1200\n" +
		"2024-05-02,EMPLOYER LTD,50000\n"

	res, err := ParseCSV("user-1", strings.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, res.Accepted, 2)
	assert.Equal(t, "GROCERY STORE", res.Accepted[0].Description)
}

func TestClassifyHeader(t *testing.T) {
	tests := []struct {
		header string
		want   ColumnKind
	}{
		{"Txn  Date", ColumnDate},
		{"NARRATION", ColumnDescription},
		{"Paid Out", ColumnDebit},
		{"paid in", ColumnCredit},
		{"Value", ColumnAmount},
		{"Balance", ColumnUnmatched},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyHeader(tt.header))
		})
	}
}
