package bigquery

const (
	defaultProjectID = "finpulse-dev"
	defaultDatasetID = "finance"

	transactionsTable = "transactions"
	budgetsTable      = "budgets"
	alertsTable       = "alerts"
	alertDedupTable   = "alert_dedup"
	embeddingsTable   = "category_embeddings"
	settingsTable     = "user_settings"
	uploadsTable      = "uploads"

	dateFormat = "2006-01-02"
)

var (
	projectID = defaultProjectID
	datasetID = defaultDatasetID
)

// Configure overrides the project and dataset used by all table operations.
// Call once at startup, before any queries run.
func Configure(project, dataset string) {
	if project != "" {
		projectID = project
	}
	if dataset != "" {
		datasetID = dataset
	}
}

func tableRef(table string) string {
	return projectID + "." + datasetID + "." + table
}
