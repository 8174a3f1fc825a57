package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/avolkov/finpulse/internal/alert"
	"github.com/avolkov/finpulse/internal/budget"
	"github.com/avolkov/finpulse/internal/categorize"
	"github.com/avolkov/finpulse/internal/config"
	"github.com/avolkov/finpulse/internal/domain"
	"github.com/avolkov/finpulse/internal/forecast"
	"github.com/avolkov/finpulse/internal/gcs"
	infraBQ "github.com/avolkov/finpulse/internal/infra/bigquery"
	"github.com/avolkov/finpulse/internal/ingest"
	"github.com/avolkov/finpulse/internal/logger"
	"github.com/avolkov/finpulse/internal/pipeline"
)

var (
	flagUser     string
	flagFile     string
	flagCategory string
	flagLimit    string
	flagMonth    string
	flagMonths   int
	flagCount    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "finpulse",
		Short:        "Personal finance pipeline CLI",
		Long:         "Ingest bank statements, manage budgets, run forecasts and alert checks.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "User ID to act as (required)")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Parse, categorize and store a local CSV statement",
		RunE:  runIngest,
	}
	ingestCmd.Flags().StringVarP(&flagFile, "file", "f", "", "Path to the CSV statement")

	categorizeCmd := &cobra.Command{
		Use:   "categorize",
		Short: "Re-run categorization over a stored month of transactions",
		RunE:  runCategorize,
	}
	categorizeCmd.Flags().StringVarP(&flagMonth, "month", "m", "", "Month as YYYY-MM (default: current)")

	budgetsCmd := &cobra.Command{
		Use:   "budgets",
		Short: "Manage monthly category budgets",
	}

	budgetsSetCmd := &cobra.Command{
		Use:   "set",
		Short: "Create or update a budget for one category and month",
		RunE:  runBudgetsSet,
	}
	budgetsSetCmd.Flags().StringVarP(&flagCategory, "category", "c", "", "Budget category")
	budgetsSetCmd.Flags().StringVarP(&flagLimit, "limit", "l", "", "Monthly limit, e.g. 500.00")
	budgetsSetCmd.Flags().StringVarP(&flagMonth, "month", "m", "", "Month as YYYY-MM (default: current)")

	budgetsListCmd := &cobra.Command{
		Use:   "list",
		Short: "Show budgets and spend status for a month",
		RunE:  runBudgetsList,
	}
	budgetsListCmd.Flags().StringVarP(&flagMonth, "month", "m", "", "Month as YYYY-MM (default: current)")

	budgetsCmd.AddCommand(budgetsSetCmd, budgetsListCmd)

	forecastCmd := &cobra.Command{
		Use:   "forecast",
		Short: "Project future spending from recent history",
		RunE:  runForecast,
	}
	forecastCmd.Flags().StringVarP(&flagCategory, "category", "c", "", "Restrict to one category (default: all spending)")
	forecastCmd.Flags().IntVarP(&flagMonths, "months", "n", 1, "Months ahead to project")

	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Evaluate and inspect spending alerts",
	}

	alertsCheckCmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate budgets and projections, dispatching any triggered alerts",
		RunE:  runAlertsCheck,
	}

	alertsListCmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent alerts",
		RunE:  runAlertsList,
	}
	alertsListCmd.Flags().IntVarP(&flagCount, "count", "n", 20, "Number of alerts to show")

	alertsCmd.AddCommand(alertsCheckCmd, alertsListCmd)

	rootCmd.AddCommand(ingestCmd, categorizeCmd, budgetsCmd, forecastCmd, alertsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func requireUser() (string, error) {
	if flagUser == "" {
		return "", errors.New("--user is required")
	}
	return flagUser, nil
}

func openRepo(ctx context.Context) (*infraBQ.Repository, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	infraBQ.Configure(cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)
	return infraBQ.NewRepository(ctx)
}

// openProcessor wires the full categorization pipeline for commands that need
// Gemini access. The returned repository must be closed by the caller.
func openProcessor(ctx context.Context, log zerolog.Logger) (*infraBQ.Repository, *pipeline.Processor, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	infraBQ.Configure(cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)

	repo, err := infraBQ.NewRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("creating repository: %w", err)
	}

	embedder, err := categorize.NewGeminiEmbedder(ctx, cfg.Models.EmbeddingModel)
	if err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("creating embedder: %w", err)
	}
	classifier, err := categorize.NewGeminiClassifier(ctx, cfg.Models.ClassifierModel)
	if err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("creating classifier: %w", err)
	}

	vocab := domain.NewVocabulary()
	opts := categorize.DefaultOptions()
	opts.SimilarityThreshold = cfg.Pipeline.SimilarityThreshold
	opts.MaxConcurrentEmbeds = cfg.Pipeline.MaxConcurrentEmbeds
	opts.CallTimeout = time.Duration(cfg.Pipeline.CallTimeoutSecs) * time.Second
	resolver := categorize.NewResolver(embedder, classifier, vocab, opts, log)

	processor := pipeline.NewProcessor(repo, gcs.NewStorageService(), resolver, embedder, vocab, log)
	return repo, processor, nil
}

func runIngest(_ *cobra.Command, _ []string) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}
	if flagFile == "" {
		return errors.New("--file is required")
	}

	log := logger.New()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, processor, err := openProcessor(ctx, log)
	if err != nil {
		return err
	}
	defer repo.Close()

	f, err := os.Open(flagFile)
	if err != nil {
		return fmt.Errorf("opening statement: %w", err)
	}
	defer f.Close()

	result, err := ingest.ParseCSV(userID, f)
	if err != nil {
		return fmt.Errorf("parsing statement: %w", err)
	}

	uploadID := uuid.New().String()
	if err := repo.RecordUpload(ctx, &infraBQ.UploadRow{
		UploadID:     uploadID,
		UserID:       userID,
		Filename:     filepath.Base(flagFile),
		IngestStatus: pipeline.StatusPending,
		UploadTS:     time.Now(),
	}); err != nil {
		return fmt.Errorf("recording upload: %w", err)
	}

	txs, avg, err := processor.CategorizeBatch(ctx, result.Accepted)
	if err != nil {
		return fmt.Errorf("categorizing: %w", err)
	}

	if err := repo.SaveTransactions(ctx, txs, uploadID); err != nil {
		return fmt.Errorf("saving transactions: %w", err)
	}
	if err := repo.FinishUpload(ctx, uploadID, pipeline.StatusSuccess, result.AcceptedCount(), result.RejectedCount(), ""); err != nil {
		return fmt.Errorf("recording upload outcome: %w", err)
	}

	fmt.Printf("Ingested %s\n", flagFile)
	fmt.Printf("  Upload ID:      %s\n", uploadID)
	fmt.Printf("  Accepted rows:  %d\n", result.AcceptedCount())
	fmt.Printf("  Rejected rows:  %d\n", result.RejectedCount())
	fmt.Printf("  Avg confidence: %.2f\n", avg)
	for _, rej := range result.Rejected {
		fmt.Printf("  ! row %d: %s\n", rej.Row, rej.Reason)
	}
	return nil
}

func runCategorize(_ *cobra.Command, _ []string) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}
	month, err := parseMonthFlag(flagMonth)
	if err != nil {
		return err
	}

	log := logger.New()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, processor, err := openProcessor(ctx, log)
	if err != nil {
		return err
	}
	defer repo.Close()

	txs, err := repo.TransactionsByMonth(ctx, userID, month)
	if err != nil {
		return fmt.Errorf("loading transactions: %w", err)
	}
	if len(txs) == 0 {
		fmt.Printf("No transactions in %s.\n", month.Format("2006-01"))
		return nil
	}

	categorized, avg, err := processor.CategorizeBatch(ctx, txs)
	if err != nil {
		return fmt.Errorf("categorizing: %w", err)
	}
	if err := repo.UpdateCategories(ctx, userID, categorized); err != nil {
		return fmt.Errorf("saving categories: %w", err)
	}

	fmt.Printf("Recategorized %d transaction(s) in %s (avg confidence %.2f)\n",
		len(categorized), month.Format("2006-01"), avg)
	return nil
}

func runBudgetsSet(_ *cobra.Command, _ []string) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}
	if flagCategory == "" {
		return errors.New("--category is required")
	}
	limit, err := decimal.NewFromString(flagLimit)
	if err != nil || !limit.IsPositive() {
		return errors.New("--limit must be a positive amount")
	}
	month, err := parseMonthFlag(flagMonth)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, err := openRepo(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.SaveBudget(ctx, domain.Budget{
		UserID:       userID,
		Category:     flagCategory,
		Month:        month,
		MonthlyLimit: limit,
	}); err != nil {
		return fmt.Errorf("saving budget: %w", err)
	}

	fmt.Printf("Budget set: %s = %s for %s\n", flagCategory, limit.StringFixed(2), month.Format("2006-01"))
	return nil
}

func runBudgetsList(_ *cobra.Command, _ []string) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}
	month, err := parseMonthFlag(flagMonth)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, err := openRepo(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	budgets, err := repo.BudgetsByMonth(ctx, userID, month)
	if err != nil {
		return fmt.Errorf("listing budgets: %w", err)
	}
	txs, err := repo.TransactionsByMonth(ctx, userID, month)
	if err != nil {
		return fmt.Errorf("loading transactions: %w", err)
	}
	settings, err := repo.Settings(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	statuses := budget.Evaluate(txs, budgets, settings.BudgetPct)

	fmt.Printf("Budgets for %s\n", month.Format("2006-01"))
	for _, s := range statuses {
		limit := "-"
		if s.Limit != nil {
			limit = s.Limit.StringFixed(2)
		}
		marker := ""
		if s.OverBudget {
			marker = "  OVER BUDGET"
		}
		fmt.Printf("  %-20s spent %10s of %10s (%.0f%%)%s\n",
			s.Category, s.Spent.StringFixed(2), limit, s.PctUsed, marker)
	}
	return nil
}

func runForecast(_ *cobra.Command, _ []string) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}
	if flagMonths < 1 || flagMonths > 12 {
		return errors.New("--months must be between 1 and 12")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, err := openRepo(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	now := time.Now().UTC()
	history, err := repo.TransactionsByDateRange(ctx, userID, now.AddDate(0, 0, -180), now)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	fc, err := forecast.Forecast(history, flagCategory, flagMonths)
	if errors.Is(err, forecast.ErrInsufficientHistory) {
		return errors.New("not enough spending history to forecast (need at least two weeks)")
	}
	if err != nil {
		return fmt.Errorf("forecasting: %w", err)
	}

	scope := "all spending"
	if flagCategory != "" {
		scope = flagCategory
	}
	fmt.Printf("Forecast for %s, %d month(s) ahead\n", scope, flagMonths)
	fmt.Printf("  Projected next-month total: %s\n", forecast.ProjectedMonthTotal(fc).StringFixed(2))
	for _, p := range fc.Points {
		fmt.Printf("  %s  %10s  [%s .. %s]\n",
			p.Date.Format("2006-01-02"),
			p.PredictedAmount.StringFixed(2),
			p.ConfidenceLower.StringFixed(2),
			p.ConfidenceUpper.StringFixed(2))
	}
	return nil
}

func runAlertsCheck(_ *cobra.Command, _ []string) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}

	log := logger.New()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := openRepo(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	now := time.Now().UTC()
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	txs, err := repo.TransactionsByMonth(ctx, userID, month)
	if err != nil {
		return fmt.Errorf("loading transactions: %w", err)
	}
	budgets, err := repo.BudgetsByMonth(ctx, userID, month)
	if err != nil {
		return fmt.Errorf("loading budgets: %w", err)
	}
	settings, err := repo.Settings(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	statuses := budget.Evaluate(txs, budgets, settings.BudgetPct)

	var fc *domain.Forecast
	history, err := repo.TransactionsByDateRange(ctx, userID, now.AddDate(0, 0, -180), now)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if f, ferr := forecast.Forecast(history, "", 1); ferr == nil {
		fc = &f
	} else if !errors.Is(ferr, forecast.ErrInsufficientHistory) {
		return fmt.Errorf("forecasting: %w", ferr)
	}

	dispatcher := alert.NewDispatcher(repo, []alert.Sender{
		alert.NewLogSender(domain.ChannelEmail, log),
		alert.NewLogSender(domain.ChannelSMS, log),
	}, log)

	alerts, err := dispatcher.Check(ctx, alert.Input{
		UserID:   userID,
		Statuses: statuses,
		Budgets:  budgets,
		Forecast: fc,
		Settings: settings,
	})
	if err != nil {
		return fmt.Errorf("checking alerts: %w", err)
	}

	if len(alerts) == 0 {
		fmt.Println("No alerts triggered.")
		return nil
	}
	fmt.Printf("Triggered %d alert(s)\n", len(alerts))
	for _, a := range alerts {
		fmt.Printf("  [%s/%s] %s\n", a.Priority, a.Trigger, a.Message)
	}
	return nil
}

func runAlertsList(_ *cobra.Command, _ []string) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, err := openRepo(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	alerts, err := repo.RecentAlerts(ctx, userID, flagCount)
	if err != nil {
		return fmt.Errorf("listing alerts: %w", err)
	}

	if len(alerts) == 0 {
		fmt.Println("No alerts.")
		return nil
	}
	for _, a := range alerts {
		fmt.Printf("%s  [%s/%s/%s]  %s\n",
			a.TriggeredAt.Format("2006-01-02 15:04"), a.Priority, a.Trigger, a.Channel, a.Message)
	}
	return nil
}

func parseMonthFlag(value string) (time.Time, error) {
	if value == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM", value)
	}
	return t, nil
}
