package web

import (
	"fmt"
	"time"

	vm "github.com/ericfisherdev/gitmirror/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/gitmirror/internal/application"
)

// toDashboardViewModel converts a Scheduler snapshot into a DashboardViewModel.
func toDashboardViewModel(snap application.Snapshot, now time.Time) vm.DashboardViewModel {
	owners := make([]vm.OwnerRowViewModel, 0, len(snap.Owners))
	for _, o := range snap.Owners {
		owners = append(owners, vm.OwnerRowViewModel{
			Name:          o.Name,
			State:         o.State,
			NextEventScan: formatCountdown(o.NextEventScan, now),
		})
	}

	return vm.DashboardViewModel{
		FullScanInProgress: snap.FullScanInProgress,
		LastFullScan:       formatLastFullScanDay(snap.LastFullScanDay),
		QueueAvailableWork: snap.QueueAvailableWork,
		QueueActiveWork:    snap.QueueActiveResources,
		Owners:             owners,
	}
}

// formatCountdown renders the time remaining until deadline, relative to now.
// A zero deadline means no event-scan window has been scheduled yet.
func formatCountdown(deadline, now time.Time) string {
	if deadline.IsZero() {
		return "pending"
	}
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return "due now"
	}
	return remaining.Round(time.Second).String()
}

// formatLastFullScanDay reconstructs a displayable date from the Scheduler's
// year*1000+dayOfYear encoding. Zero means no full scan has started yet.
func formatLastFullScanDay(dayKey int) string {
	if dayKey == 0 {
		return "never"
	}
	year := dayKey / 1000
	dayOfYear := dayKey % 1000
	date := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, dayOfYear-1)
	return fmt.Sprintf("%s (day %d)", date.Format("2006-01-02"), dayOfYear)
}
