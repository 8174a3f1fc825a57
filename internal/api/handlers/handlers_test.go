package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/avolkov/finpulse/internal/alert"
	"github.com/avolkov/finpulse/internal/api/middleware"
	"github.com/avolkov/finpulse/internal/domain"
	infrabq "github.com/avolkov/finpulse/internal/infra/bigquery"
	"github.com/avolkov/finpulse/internal/jobs"
	"github.com/avolkov/finpulse/internal/logger"
)

type fakeStore struct {
	txs      []domain.Transaction
	budgets  []domain.Budget
	alerts   []domain.Alert
	settings *domain.AlertSettings
	uploads  []*infrabq.UploadRow
	updated  []domain.Transaction
}

func (s *fakeStore) TransactionsByMonth(ctx context.Context, userID string, month time.Time) ([]domain.Transaction, error) {
	return s.txs, nil
}

func (s *fakeStore) TransactionsByDateRange(ctx context.Context, userID string, start, end time.Time) ([]domain.Transaction, error) {
	return s.txs, nil
}

func (s *fakeStore) SaveTransactions(ctx context.Context, txs []domain.Transaction, uploadID string) error {
	s.txs = append(s.txs, txs...)
	return nil
}

func (s *fakeStore) UpdateCategories(ctx context.Context, userID string, txs []domain.Transaction) error {
	s.updated = txs
	return nil
}

func (s *fakeStore) SaveBudget(ctx context.Context, b domain.Budget) error {
	s.budgets = append(s.budgets, b)
	return nil
}

func (s *fakeStore) BudgetsByMonth(ctx context.Context, userID string, month time.Time) ([]domain.Budget, error) {
	return s.budgets, nil
}

func (s *fakeStore) RecentAlerts(ctx context.Context, userID string, limit int) ([]domain.Alert, error) {
	return s.alerts, nil
}

func (s *fakeStore) Settings(ctx context.Context, userID string) (domain.AlertSettings, error) {
	if s.settings != nil {
		return *s.settings, nil
	}
	return domain.DefaultAlertSettings(userID), nil
}

func (s *fakeStore) SaveSettings(ctx context.Context, settings domain.AlertSettings) error {
	s.settings = &settings
	return nil
}

func (s *fakeStore) RecordUpload(ctx context.Context, row *infrabq.UploadRow) error {
	s.uploads = append(s.uploads, row)
	return nil
}

func (s *fakeStore) FinishUpload(ctx context.Context, uploadID, status string, accepted, rejected int, errMsg string) error {
	for _, row := range s.uploads {
		if row.UploadID == uploadID {
			row.IngestStatus = status
			row.AcceptedRows = int64(accepted)
			row.RejectedRows = int64(rejected)
		}
	}
	return nil
}

func (s *fakeStore) Uploads(ctx context.Context, userID string) ([]*infrabq.UploadRow, error) {
	return s.uploads, nil
}

type fakeStorage struct {
	uploadedObject string
}

func (f *fakeStorage) UploadBytes(ctx context.Context, bucketName, objectName string, data []byte) (string, error) {
	f.uploadedObject = objectName
	return "gs://" + bucketName + "/" + objectName, nil
}

func (f *fakeStorage) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	return nil, nil
}

type fakePublisher struct {
	published []*jobs.IngestStatementJob
}

func (p *fakePublisher) PublishIngestStatement(ctx context.Context, job *jobs.IngestStatementJob) error {
	job.JobID = "job-1"
	job.Status = jobs.JobStatusPending
	p.published = append(p.published, job)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeCategorizer struct{}

func (fakeCategorizer) CategorizeBatch(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, float64, error) {
	out := make([]domain.Transaction, len(txs))
	copy(out, txs)
	for i := range out {
		out[i].Category = "Groceries"
		out[i].CategoryMethod = domain.MethodEmbedding
		out[i].CategoryConfidence = 0.9
	}
	return out, 0.9, nil
}

type fakeChecker struct {
	got alert.Input
}

func (c *fakeChecker) Check(ctx context.Context, in alert.Input) ([]domain.Alert, error) {
	c.got = in
	return []domain.Alert{{AlertID: "a1", UserID: in.UserID}}, nil
}

func doRequest(t *testing.T, handler http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	middleware.Auth(handler).ServeHTTP(rec, req)
	return rec
}

func testLog() zerolog.Logger {
	return logger.NewWithWriter(io.Discard)
}

func spendTx(category, amount string) domain.Transaction {
	amt, _ := decimal.NewFromString(amount)
	return domain.Transaction{
		TransactionID: "t1",
		UserID:        "u1",
		Date:          time.Now().UTC(),
		Description:   "spend",
		Amount:        amt.Neg(),
		Category:      category,
	}
}

func TestUploadCSV(t *testing.T) {
	store := &fakeStore{}
	storage := &fakeStorage{}
	publisher := &fakePublisher{}
	h := NewUploadsHandler(store, storage, publisher, "statements", testLog())

	rec := doRequest(t, h.UploadCSV, http.MethodPost, "/api/upload/csv?filename=may.csv", "Date,Description,Amount\n2024-05-01,TESCO,-10.00\n")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["upload_id"] == "" || resp["job_id"] != "job-1" {
		t.Errorf("response = %v", resp)
	}
	if len(store.uploads) != 1 || store.uploads[0].Filename != "may.csv" {
		t.Errorf("uploads = %+v", store.uploads)
	}
	if len(publisher.published) != 1 || publisher.published[0].UploadID != store.uploads[0].UploadID {
		t.Errorf("published = %+v", publisher.published)
	}
	if !strings.Contains(storage.uploadedObject, "u1/") {
		t.Errorf("object name %q should be scoped to the user", storage.uploadedObject)
	}
}

func TestUploadCSVEmptyBody(t *testing.T) {
	h := NewUploadsHandler(&fakeStore{}, &fakeStorage{}, &fakePublisher{}, "statements", testLog())

	rec := doRequest(t, h.UploadCSV, http.MethodPost, "/api/upload/csv", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadRequiresUser(t *testing.T) {
	h := NewUploadsHandler(&fakeStore{}, &fakeStorage{}, &fakePublisher{}, "statements", testLog())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/csv", strings.NewReader("data"))
	rec := httptest.NewRecorder()
	middleware.Auth(http.HandlerFunc(h.UploadCSV)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestBudgetUpsertAndList(t *testing.T) {
	store := &fakeStore{}
	h := NewBudgetsHandler(store, 110, testLog())

	rec := doRequest(t, h.Upsert, http.MethodPost, "/api/budgets", `{"category":"Dining","month":"2024-05","monthly_limit":"400.00"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.budgets) != 1 || store.budgets[0].Category != "Dining" {
		t.Errorf("budgets = %+v", store.budgets)
	}

	rec = doRequest(t, h.List, http.MethodGet, "/api/budgets?month=2024-05", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
}

func TestBudgetUpsertRejectsNonPositiveLimit(t *testing.T) {
	h := NewBudgetsHandler(&fakeStore{}, 110, testLog())

	rec := doRequest(t, h.Upsert, http.MethodPost, "/api/budgets", `{"category":"Dining","month":"2024-05","monthly_limit":"0"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestBudgetStatus(t *testing.T) {
	limit, _ := decimal.NewFromString("100.00")
	store := &fakeStore{
		txs:     []domain.Transaction{spendTx("Dining", "130.00")},
		budgets: []domain.Budget{{UserID: "u1", Category: "Dining", MonthlyLimit: limit}},
	}
	h := NewBudgetsHandler(store, 110, testLog())

	rec := doRequest(t, h.Status, http.MethodGet, "/api/budgets/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Statuses []domain.BudgetStatus `json:"statuses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Statuses) != 1 || !resp.Statuses[0].OverBudget {
		t.Errorf("statuses = %+v, want one over-budget entry", resp.Statuses)
	}
}

func TestBudgetStatusUsesUserThreshold(t *testing.T) {
	limit, _ := decimal.NewFromString("100.00")
	settings := domain.DefaultAlertSettings("u1")
	settings.BudgetPct = 150
	store := &fakeStore{
		txs:      []domain.Transaction{spendTx("Dining", "130.00")},
		budgets:  []domain.Budget{{UserID: "u1", Category: "Dining", MonthlyLimit: limit}},
		settings: &settings,
	}
	h := NewBudgetsHandler(store, 110, testLog())

	// 130% of the limit is over the server default of 110 but under the
	// user's own 150, so the status must not flag it.
	rec := doRequest(t, h.Status, http.MethodGet, "/api/budgets/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Statuses []domain.BudgetStatus `json:"statuses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Statuses) != 1 || resp.Statuses[0].OverBudget {
		t.Errorf("statuses = %+v, want one entry under the user threshold", resp.Statuses)
	}
}

func TestIngestSync(t *testing.T) {
	store := &fakeStore{}
	h := NewTransactionsHandler(store, fakeCategorizer{}, testLog())

	csv := "Date,Description,Amount\n2024-05-01,TESCO,-10.00\nnot-a-date,BAD ROW,xx\n"
	rec := doRequest(t, h.Ingest, http.MethodPost, "/api/ingest", csv)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Accepted int `json:"accepted"`
		Rejected int `json:"rejected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Accepted != 1 || resp.Rejected != 1 {
		t.Errorf("accepted/rejected = %d/%d, want 1/1", resp.Accepted, resp.Rejected)
	}
	if len(store.txs) != 1 || store.txs[0].Category != "Groceries" {
		t.Errorf("stored = %+v", store.txs)
	}
	if len(store.uploads) != 1 || store.uploads[0].IngestStatus != "SUCCESS" {
		t.Errorf("upload record = %+v", store.uploads)
	}
}

func TestIngestSyncEmptyBody(t *testing.T) {
	h := NewTransactionsHandler(&fakeStore{}, fakeCategorizer{}, testLog())

	rec := doRequest(t, h.Ingest, http.MethodPost, "/api/ingest", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCategorizeUpdatesStore(t *testing.T) {
	store := &fakeStore{txs: []domain.Transaction{spendTx("", "10.00")}}
	h := NewTransactionsHandler(store, fakeCategorizer{}, testLog())

	rec := doRequest(t, h.Categorize, http.MethodPost, "/api/categorize", `{"month":"2024-05"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.updated) != 1 || store.updated[0].Category != "Groceries" {
		t.Errorf("updated = %+v", store.updated)
	}
}

func TestAlertsCheckPassesSettings(t *testing.T) {
	limit, _ := decimal.NewFromString("100.00")
	store := &fakeStore{
		txs:     []domain.Transaction{spendTx("Dining", "130.00")},
		budgets: []domain.Budget{{UserID: "u1", Category: "Dining", MonthlyLimit: limit}},
	}
	checker := &fakeChecker{}
	h := NewAlertsHandler(store, checker, testLog())

	rec := doRequest(t, h.Check, http.MethodPost, "/api/alerts/check", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if checker.got.UserID != "u1" {
		t.Errorf("checker input user = %q, want u1", checker.got.UserID)
	}
	if len(checker.got.Statuses) != 1 {
		t.Errorf("checker received %d statuses, want 1", len(checker.got.Statuses))
	}
	if checker.got.Settings.BudgetPct != 110 {
		t.Errorf("settings pct = %v, want default 110", checker.got.Settings.BudgetPct)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := &fakeStore{}
	h := NewAlertsHandler(store, &fakeChecker{}, testLog())

	rec := doRequest(t, h.UpdateSettings, http.MethodPut, "/api/users/me",
		`{"budget_pct":120,"overage_threshold":"2500.00","email_enabled":true,"email":"u1@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h.GetSettings, http.MethodGet, "/api/users/me", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var settings domain.AlertSettings
	if err := json.Unmarshal(rec.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decoding settings: %v", err)
	}
	if settings.BudgetPct != 120 || settings.Email != "u1@example.com" {
		t.Errorf("settings = %+v", settings)
	}
}

func TestForecastInsufficientHistory(t *testing.T) {
	store := &fakeStore{txs: []domain.Transaction{spendTx("Dining", "10.00")}}
	h := NewForecastHandler(store, testLog())

	rec := doRequest(t, h.Forecast, http.MethodPost, "/api/forecast", `{"months":1}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestForecastRejectsTooManyMonths(t *testing.T) {
	h := NewForecastHandler(&fakeStore{}, testLog())

	rec := doRequest(t, h.Forecast, http.MethodPost, "/api/forecast", `{"months":24}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
