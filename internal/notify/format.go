package notify

import (
	"fmt"
	"strings"

	"miunlock/internal/eventbus"
	"miunlock/internal/race"
)

// Format renders a bus event as a chat message. Only the milestones worth a
// phone buzz are rendered: clock sync, per-worker verdicts and the final
// summary. Everything else reports false.
func Format(ev eventbus.Event) (string, bool) {
	switch data := ev.Data.(type) {
	case race.SyncEvent:
		return fmt.Sprintf("🕐 Clock synced against %s, anchor %s.",
			data.Server, data.Time.Format("15:04:05.000 MST")), true
	case race.ResultEvent:
		return formatResult(data.Result), true
	case race.DoneEvent:
		return formatDone(data), true
	default:
		return "", false
	}
}

func formatResult(res race.WorkerResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Worker %d %s after %d attempts",
		outcomeIcon(res.Outcome), res.WorkerID, res.Outcome, res.Attempts)
	if res.Message != "" {
		b.WriteString(": ")
		b.WriteString(res.Message)
	}
	return b.String()
}

func formatDone(d race.DoneEvent) string {
	var b strings.Builder
	if d.Approved {
		b.WriteString("🎉 Approved! The unlock window is open for this account.")
	} else {
		b.WriteString("🏁 Race finished, no approval this time.")
	}
	for _, res := range d.Results {
		fmt.Fprintf(&b, "\n%s worker %d: %s (%d attempts)",
			outcomeIcon(res.Outcome), res.WorkerID, res.Outcome, res.Attempts)
	}
	return b.String()
}

func outcomeIcon(o race.Outcome) string {
	switch o {
	case race.OutcomeApproved:
		return "✅"
	case race.OutcomeRejected:
		return "❌"
	default:
		return "❓"
	}
}
