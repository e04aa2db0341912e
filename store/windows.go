package store

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// GenerateWindows derives candidate maintenance windows from a cron expression:
// every tick after from and before from+horizon opens a window of length dur.
// IDs are stable for a given start time so regenerated windows line up with
// persisted ones.
func GenerateWindows(expr string, from time.Time, horizon, dur time.Duration, impact string) ([]MaintenanceWindow, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid window cron expression %q", expr)
	}
	end := from.Add(horizon)
	var out []MaintenanceWindow
	ref := from
	for {
		next, err := gronx.NextTickAfter(expr, ref, false)
		if err != nil {
			return nil, fmt.Errorf("next window tick: %w", err)
		}
		if next.After(end) {
			break
		}
		out = append(out, MaintenanceWindow{
			ID:               "mw-" + next.UTC().Format("2006-01-02T1504"),
			StartTime:        next,
			EndTime:          next.Add(dur),
			ProductionImpact: impact,
			IsAvailable:      true,
		})
		ref = next
	}
	return out, nil
}
