package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/storepulse/storepulse/exporter/internal/config"
	"github.com/storepulse/storepulse/exporter/internal/storeclient"
	"github.com/storepulse/storepulse/exporter/internal/tlscheck"
)

var probeCmd = &cobra.Command{
	Use:   "probe [id]",
	Short: "Check connectivity and certificates of the configured stores",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	stores := cfg.Stores
	if len(args) == 1 {
		stores = nil
		for _, s := range cfg.Stores {
			if s.ID == args[0] {
				stores = append(stores, s)
			}
		}
		if len(stores) == 0 {
			return fmt.Errorf("unknown store %q", args[0])
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STORE\tENABLED\tREACHABLE\tTLS\tDETAIL")

	var down int
	for _, s := range stores {
		c, err := storeclient.New(s)
		if err != nil {
			fmt.Fprintf(w, "%s\t%t\t-\t-\t%v\n", s.ID, s.Enabled, err)
			down++
			continue
		}

		reachable, detail := "yes", ""
		if err := c.Ping(cmd.Context()); err != nil {
			reachable, detail = "no", err.Error()
			down++
		}

		tls := "-"
		if cert := tlscheck.Check(cmd.Context(), s); cert != nil {
			tls = fmt.Sprintf("%s (%dd)", cert.Status, cert.DaysLeft)
			if cert.Error != "" && detail == "" {
				detail = cert.Error
			}
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n", s.ID, s.Enabled, reachable, tls, detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if down > 0 {
		return fmt.Errorf("%d of %d stores unreachable", down, len(stores))
	}
	return nil
}
