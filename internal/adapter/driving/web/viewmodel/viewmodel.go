// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain and application types.
package viewmodel

// OwnerRowViewModel holds presentation-ready data for one owner's row in the
// status dashboard's ingestion table.
type OwnerRowViewModel struct {
	Name          string
	State         string
	NextEventScan string // formatted countdown, e.g. "47s" or "due now"
}

// DashboardViewModel holds all data needed to render the status dashboard.
type DashboardViewModel struct {
	FullScanInProgress bool
	LastFullScan       string // formatted timestamp, or "never"
	QueueAvailableWork int
	QueueActiveWork    int
	Owners             []OwnerRowViewModel
}
