package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/storepulse/storepulse/exporter/internal/status"
)

// DiagnosticHint is one operator-facing remark about a store.
type DiagnosticHint struct {
	// Key is stable and machine-readable.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// computeDiagnostics derives hints from what is known about a store,
// critical first.
func computeDiagnostics(e *status.Entry) []DiagnosticHint {
	if e == nil || (e.Up == nil && e.Last == nil) {
		return []DiagnosticHint{{
			Key:    "warming_up",
			Level:  "info",
			Title:  "Waiting for first collection",
			Detail: "No probe or collection has finished for this store yet.",
		}}
	}

	if e.Last == nil {
		if !*e.Up {
			return []DiagnosticHint{{
				Key:    "unreachable",
				Level:  "critical",
				Title:  "Store unreachable",
				Detail: "The system_status probe failed. Check the store URL, TLS settings and that the REST API is enabled.",
			}}
		}
		return []DiagnosticHint{{
			Key:    "probe_ok",
			Level:  "info",
			Title:  "Reachable",
			Detail: "The store answered its probe; no collection has finished yet.",
		}}
	}

	if e.Last.Success {
		return []DiagnosticHint{{
			Key:    "healthy",
			Level:  "ok",
			Title:  "Collecting",
			Detail: fmt.Sprintf("Orders, products and customers were collected in %s.", e.Last.Duration),
		}}
	}

	branches := make([]string, 0, len(e.Last.Branches))
	for b := range e.Last.Branches {
		branches = append(branches, b)
	}
	sort.Strings(branches)

	var hints []DiagnosticHint
	for _, b := range branches {
		hints = append(hints, branchHint(b, e.Last.Branches[b]))
	}
	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank(hints[i].Level) < levelRank(hints[j].Level)
	})
	return hints
}

func branchHint(branch, msg string) DiagnosticHint {
	switch {
	case strings.Contains(msg, "status 401"), strings.Contains(msg, "status 403"):
		return DiagnosticHint{
			Key:    branch + "_auth_rejected",
			Level:  "critical",
			Title:  "Credentials rejected",
			Detail: fmt.Sprintf("The %s endpoint refused the consumer key: %s. Check that the key has read access and the auth_mode matches the server.", branch, msg),
		}
	case strings.Contains(msg, "status 404"):
		return DiagnosticHint{
			Key:    branch + "_not_found",
			Level:  "critical",
			Title:  "API not found",
			Detail: fmt.Sprintf("The %s endpoint does not exist: %s. Check the store URL and permalink settings.", branch, msg),
		}
	default:
		return DiagnosticHint{
			Key:    branch + "_failed",
			Level:  "warning",
			Title:  strings.ToUpper(branch[:1]) + branch[1:] + " failed",
			Detail: fmt.Sprintf("The last %s collection failed and its series kept their previous values: %s", branch, msg),
		}
	}
}

func levelRank(level string) int {
	switch level {
	case "critical":
		return 0
	case "warning":
		return 1
	case "info":
		return 2
	default:
		return 3
	}
}
