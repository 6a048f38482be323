package api

import (
	"testing"

	"github.com/storepulse/storepulse/exporter/internal/orchestrator"
	"github.com/storepulse/storepulse/exporter/internal/status"
)

func ptr(b bool) *bool { return &b }

func TestComputeDiagnostics(t *testing.T) {
	tests := []struct {
		name  string
		entry *status.Entry
		keys  []string
	}{
		{"no entry", nil, []string{"warming_up"}},
		{"probe failed", &status.Entry{Up: ptr(false)}, []string{"unreachable"}},
		{"probe ok", &status.Entry{Up: ptr(true)}, []string{"probe_ok"}},
		{
			"healthy",
			&status.Entry{Up: ptr(true), Last: &orchestrator.CycleResult{Success: true}},
			[]string{"healthy"},
		},
		{
			"auth rejected sorts before plain failure",
			&status.Entry{Up: ptr(false), Last: &orchestrator.CycleResult{
				Branches: map[string]string{
					"customers": "fetch customers: status 502: bad gateway",
					"orders":    "fetch orders: status 401: Sorry, you cannot list resources.",
				},
			}},
			[]string{"orders_auth_rejected", "customers_failed"},
		},
		{
			"not found",
			&status.Entry{Last: &orchestrator.CycleResult{
				Branches: map[string]string{"products": "fetch products: status 404: No route"},
			}},
			[]string{"products_not_found"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeDiagnostics(tt.entry)
			if len(got) != len(tt.keys) {
				t.Fatalf("hints: got %+v, want keys %v", got, tt.keys)
			}
			for i, k := range tt.keys {
				if got[i].Key != k {
					t.Errorf("hint %d: got %q, want %q", i, got[i].Key, k)
				}
			}
		})
	}
}
