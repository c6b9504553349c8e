package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/minermon"
	"github.com/loykin/minermon/internal/monitor"
	"github.com/loykin/minermon/internal/notify"
)

func createNotifyTestCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test email with the configured SMTP settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := minermon.LoadConfig(global.ConfigPath)
			if err != nil {
				return err
			}
			closer := setupLogging(cfg, cmd.ErrOrStderr())
			defer func() { _ = closer.Close() }()

			w := minermon.NewWithHistory(cfg, nil)
			err = w.NotifyTest(cmd.Context())
			switch {
			case err == nil:
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Sent %q to %v\n",
					w.NotificationSubject(monitor.EventTestNotification), cfg.SMTP.RecipientList())
				return nil
			case errors.Is(err, notify.ErrDevMode), errors.Is(err, notify.ErrNoServer),
				errors.Is(err, notify.ErrNoRecipients), errors.Is(err, notify.ErrNoSender):
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Not sent: %v\n", err)
				return nil
			default:
				return fmt.Errorf("send test notification: %w", err)
			}
		},
	}
}
