// Package main is the storepulse exporter: it polls store REST APIs and
// serves the aggregated numbers as Prometheus metrics.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
