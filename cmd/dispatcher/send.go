package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ignite/campaign-dispatch/internal/api"
	"github.com/ignite/campaign-dispatch/internal/app"
	"github.com/ignite/campaign-dispatch/internal/dispatch"
)

type sendFlags struct {
	to        []string
	list      string
	subject   string
	template  string
	fromName  string
	fromEmail string
	preview   string
}

func newSendCmd(load configLoader) *cobra.Command {
	var f sendFlags

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one campaign and print the per-recipient results as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			svc, err := app.New(cmd.Context(), cfg, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer svc.Close()

			summary, err := svc.Dispatch(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			if err := out.Encode(api.NewSendResponse(summary)); err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d deliveries failed", summary.Failed, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&f.to, "to", nil, "Recipient addresses (comma separated)")
	cmd.Flags().StringVar(&f.list, "list", "", "File with one recipient per line")
	cmd.Flags().StringVar(&f.subject, "subject", "", "Subject line; placeholders allowed")
	cmd.Flags().StringVar(&f.template, "template", "", "HTML or text template file")
	cmd.Flags().StringVar(&f.fromName, "from-name", "", "Sender display name")
	cmd.Flags().StringVar(&f.fromEmail, "from-email", "", "Sender address")
	cmd.Flags().StringVar(&f.preview, "preview", "", "Inbox preview text")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("from-email")
	return cmd
}

func (f sendFlags) request() (dispatch.Request, error) {
	emails := append([]string{}, f.to...)
	if f.list != "" {
		fh, err := os.Open(f.list)
		if err != nil {
			return dispatch.Request{}, fmt.Errorf("open recipient list: %w", err)
		}
		defer fh.Close()
		listed, err := readRecipients(fh)
		if err != nil {
			return dispatch.Request{}, fmt.Errorf("read recipient list: %w", err)
		}
		emails = append(emails, listed...)
	}

	recipients, invalid := api.NormalizeRecipients(emails)
	if len(invalid) > 0 {
		return dispatch.Request{}, fmt.Errorf("invalid email addresses: %s", strings.Join(invalid, ", "))
	}

	tmpl, err := os.ReadFile(f.template)
	if err != nil {
		return dispatch.Request{}, fmt.Errorf("read template: %w", err)
	}

	return dispatch.Request{
		Recipients:  recipients,
		Subject:     f.subject,
		Template:    string(tmpl),
		PreviewText: f.preview,
		Sender: dispatch.Sender{
			Name:  f.fromName,
			Email: strings.ToLower(strings.TrimSpace(f.fromEmail)),
		},
	}, nil
}

// readRecipients reads one address per line. Blank lines and lines
// starting with # are skipped; a CSV-style line contributes its first field.
func readRecipients(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, ','); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
