package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/cookiepool/internal/adapter/driving/http"
)

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe every credential now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var s httphandler.HealthSummaryResponse
			if err := newClient(opts).do(http.MethodPost, "/api/v1/health-check", nil, "", &s, http.StatusOK); err != nil {
				return err
			}
			if opts.outputFmt != "table" {
				return printOutput(cmd.OutOrStdout(), opts.outputFmt, s)
			}
			return printTable(cmd.OutOrStdout(),
				[]string{"Tested", "Active", "Blocked", "Expired", "Errors"},
				[][]string{{itoa(s.Tested), itoa(s.Active), itoa(s.Blocked), itoa(s.Expired), itoa(s.Errors)}},
			)
		},
	}
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show pool statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var s httphandler.StatsResponse
			if err := newClient(opts).getJSON("/api/v1/pool/stats", &s); err != nil {
				return err
			}
			return printStats(cmd, opts, s)
		},
	}
}

func newFallbackCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "fallback on|off",
		Short:     "Enable or disable the browser session fallback",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled := args[0] == "on"
			var s httphandler.StatsResponse
			req := httphandler.FallbackToggleRequest{Enabled: &enabled}
			if err := newClient(opts).sendJSON(http.MethodPut, "/api/v1/pool/fallback", req, &s); err != nil {
				return err
			}
			return printStats(cmd, opts, s)
		},
	}
}

func printStats(cmd *cobra.Command, opts *options, s httphandler.StatsResponse) error {
	if opts.outputFmt != "table" {
		return printOutput(cmd.OutOrStdout(), opts.outputFmt, s)
	}
	return printTable(cmd.OutOrStdout(),
		[]string{"Field", "Value"},
		[][]string{
			{"Total", itoa(s.Total)},
			{"Active", itoa(s.Active)},
			{"Untested", itoa(s.Untested)},
			{"Blocked", itoa(s.Blocked)},
			{"Expired", itoa(s.Expired)},
			{"Error", itoa(s.Error)},
			{"Usable", itoa(s.Usable)},
			{"Fallback Enabled", strconv.FormatBool(s.FallbackEnabled)},
			{"Fallback Usage", itoa(s.FallbackUsageCount)},
			{"Last Rotation", orDash(s.LastRotationAt)},
			{"Last Health Check", orDash(s.LastHealthCheckAt)},
		},
	)
}

func newResolveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve URL",
		Short: "Fetch media metadata through the fallback chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r httphandler.ResolveResponse
			req := httphandler.ResolveRequest{URL: args[0]}
			if err := newClient(opts).sendJSON(http.MethodPost, "/api/v1/resolve", req, &r); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.outputFmt != "table" {
				return printOutput(out, opts.outputFmt, r)
			}
			via := r.Method
			if r.CredentialID != "" {
				via += " " + r.CredentialID
			}
			fmt.Fprintf(out, "resolved via %s after %d attempts\n", via, r.Attempts)
			if len(r.Metadata) > 0 {
				return printJSON(out, r.Metadata)
			}
			fmt.Fprintln(out, r.Output)
			return nil
		},
	}
}
