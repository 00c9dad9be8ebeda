package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/attendance-notify/internal/adminclient"
	"github.com/rickgao/attendance-notify/internal/connection"
	"github.com/rickgao/attendance-notify/internal/notify"
)

var (
	outputJSON bool
	sendTo     string
	notifyAt   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show WhatsApp connection status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := newAdminClient().Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		return printStatus(cmd.OutOrStdout(), st)
	},
}

var qrCmd = &cobra.Command{
	Use:   "qr",
	Short: "Print the pending pairing QR payload",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		code, err := newAdminClient().QRCode(cmd.Context())
		if err != nil {
			return fmt.Errorf("qr: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), code)
		return nil
	},
}

var startCmd = lifecycleCommand("start", "Start the WhatsApp client", (*adminclient.Client).Start)
var stopCmd = lifecycleCommand("stop", "Stop the client and disable automatic restarts", (*adminclient.Client).Stop)
var restartCmd = lifecycleCommand("restart", "Tear down the client and start over", (*adminclient.Client).Restart)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Re-sync with the client and restart only if needed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := newAdminClient().Recover(cmd.Context())
		if err != nil {
			return fmt.Errorf("recover: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recovery: %s\n", res.Result)
		return printStatus(cmd.OutOrStdout(), res.Status)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Unlink the device; the next start needs a new QR scan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := newAdminClient().Logout(cmd.Context())
		if err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		if res.Warning != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", res.Warning)
		}
		return printStatus(cmd.OutOrStdout(), res.Status)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a message",
	Long:  "Send a message to --to, or to the configured group when --to is empty.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newAdminClient().Send(cmd.Context(), sendTo, strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		if outputJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s via %s after %d attempt(s)\n", res.ChatID, res.Strategy, res.Attempts)
		return nil
	},
}

var notifyCmd = &cobra.Command{
	Use:   "notify <login|logout> <employee>",
	Short: "Queue an attendance notification",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev := notify.AttendanceEvent{
			Action:   notify.Action(args[0]),
			Employee: strings.Join(args[1:], " "),
		}
		if notifyAt != "" {
			at, err := time.Parse(time.RFC3339, notifyAt)
			if err != nil {
				return fmt.Errorf("notify: --at: %w", err)
			}
			ev.At = at
		}
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		if err := newAdminClient().Attendance(cmd.Context(), ev); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "queued")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print raw JSON")
	sendCmd.Flags().StringVar(&sendTo, "to", "", "phone number, group name or chat id")
	notifyCmd.Flags().StringVar(&notifyAt, "at", "", "event time (RFC 3339); defaults to now")

	rootCmd.AddCommand(statusCmd, qrCmd, startCmd, stopCmd, restartCmd, recoverCmd, logoutCmd, sendCmd, notifyCmd)
}

func lifecycleCommand(use, short string, call func(*adminclient.Client, context.Context) (connection.Status, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := call(newAdminClient(), cmd.Context())
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			return printStatus(cmd.OutOrStdout(), st)
		},
	}
}

func newAdminClient() *adminclient.Client {
	return adminclient.NewClient(apiAddr, apiToken)
}

func printStatus(w io.Writer, st connection.Status) error {
	if outputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "State:            %s\n", st.State)
	fmt.Fprintf(w, "Ready:            %t\n", st.Ready)
	fmt.Fprintf(w, "Client:           %t\n", st.HasClient)
	if st.ConnectedIdentity != nil {
		fmt.Fprintf(w, "Account:          %s (%s)\n", st.ConnectedIdentity.DisplayName, st.ConnectedIdentity.Handle)
	}
	if st.QRCode != nil {
		fmt.Fprintln(w, "QR:               pending (run `notifier qr`)")
	}
	fmt.Fprintf(w, "Restarts:         %d/%d", st.RestartAttempts, st.MaxRestartAttempts)
	if st.RestartPending {
		fmt.Fprint(w, " (restart pending)")
	}
	fmt.Fprintln(w)
	if st.StopReason != connection.StopNone {
		fmt.Fprintf(w, "Stopped:          %s\n", st.StopReason)
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error:       %s\n", st.LastError)
	}
	if st.LastSuccessfulSendAt != nil {
		fmt.Fprintf(w, "Last send:        %s\n", st.LastSuccessfulSendAt.Format(time.RFC3339))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
