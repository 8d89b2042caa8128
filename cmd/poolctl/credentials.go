package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/cookiepool/internal/adapter/driving/http"
)

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List credentials in pool order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var creds []httphandler.CredentialResponse
			if err := newClient(opts).getJSON("/api/v1/credentials", &creds); err != nil {
				return err
			}
			return printCredentials(cmd.OutOrStdout(), opts.outputFmt, creds...)
		},
	}
}

func newAddCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add FILE...",
		Short: "Upload one or more exported cookie files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(opts).upload(args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.outputFmt != "table" {
				if err := printOutput(out, opts.outputFmt, resp); err != nil {
					return err
				}
			} else {
				for _, c := range resp.Added {
					fmt.Fprintf(out, "added %s (%s)\n", c.ID, c.Name)
				}
				for _, f := range resp.Failed {
					fmt.Fprintf(out, "rejected %s: %s\n", f.Name, f.Error)
				}
			}

			if len(resp.Failed) > 0 {
				return fmt.Errorf("%d of %d files rejected", len(resp.Failed), len(args))
			}
			return nil
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a credential and its file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := newClient(opts).do(http.MethodDelete, credentialPath(args[0], ""), nil, "", nil, http.StatusNoContent)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newProbeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "probe ID",
		Short: "Run a health probe against one credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postCredential(cmd, opts, args[0], "probe")
		},
	}
}

func newResetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset ID",
		Short: "Return a credential to the untested state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postCredential(cmd, opts, args[0], "reset")
		},
	}
}

func postCredential(cmd *cobra.Command, opts *options, id, action string) error {
	var c httphandler.CredentialResponse
	if err := newClient(opts).do(http.MethodPost, credentialPath(id, action), nil, "", &c, http.StatusOK); err != nil {
		return err
	}
	return printCredentials(cmd.OutOrStdout(), opts.outputFmt, c)
}

func credentialPath(id, action string) string {
	p := "/api/v1/credentials/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func printCredentials(w io.Writer, format string, creds ...httphandler.CredentialResponse) error {
	if format != "table" {
		return printOutput(w, format, creds)
	}

	headers := []string{"ID", "Name", "Status", "Failures", "Successes", "Last Checked", "Last Error"}
	rows := make([][]string, 0, len(creds))
	for _, c := range creds {
		rows = append(rows, []string{
			c.ID,
			truncate(c.Name, 30),
			c.Status,
			itoa(c.FailureCount),
			itoa(c.SuccessCount),
			orDash(c.LastCheckedAt),
			truncate(c.LastError, 50),
		})
	}
	return printTable(w, headers, rows)
}
