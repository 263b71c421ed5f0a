package mailctl

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mailfleet/mailfleet/pkg/email"
)

// NewRootCommand builds the mailctl command tree.
func NewRootCommand() *cobra.Command {
	var server string

	root := &cobra.Command{
		Use:   "mailctl",
		Short: "Mailfleet CLI",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if server == "" {
				server = os.Getenv("MAILCTL_SERVER")
			}
			if server == "" {
				server = "http://localhost:8080"
			}
		},
	}
	root.PersistentFlags().StringVar(&server, "server", "", "mailfleet server base URL (defaults to $MAILCTL_SERVER or http://localhost:8080)")

	root.AddCommand(
		newSendCommand(&server),
		newSendTemplatedCommand(&server),
		newTemplatesCommand(&server),
		newGetCommand(&server),
	)
	return root
}

func newSendCommand(server *string) *cobra.Command {
	var from, fromName, subject, body string
	var to []string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a plain email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload := email.SendPayload{
				Email: email.SendRequest{
					Sender:     email.Sender{Name: fromName, Email: from},
					Recipients: to,
					Subject:    subject,
					Body:       body,
				},
			}
			msg, err := NewClient(*server).Send(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(msg))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "sender address")
	cmd.Flags().StringVar(&fromName, "from-name", "", "sender display name")
	cmd.Flags().StringSliceVar(&to, "to", nil, "recipient addresses")
	cmd.Flags().StringVar(&subject, "subject", "", "subject line")
	cmd.Flags().StringVar(&body, "body", "", "body text")
	return cmd
}

func newSendTemplatedCommand(server *string) *cobra.Command {
	var from, fromName, templateName string
	var to, props []string

	cmd := &cobra.Command{
		Use:   "send-templated",
		Short: "Send a templated email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			properties := make(map[string]any, len(props))
			for _, p := range props {
				k, v, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("invalid property %q, expected key=value", p)
				}
				properties[k] = v
			}

			payload := email.SendTemplatedPayload{
				Email: email.SendTemplatedRequest{
					Sender:             email.Sender{Name: fromName, Email: from},
					Recipients:         to,
					TemplateName:       templateName,
					TemplateProperties: properties,
				},
			}
			msg, err := NewClient(*server).SendTemplated(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(msg))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "sender address")
	cmd.Flags().StringVar(&fromName, "from-name", "", "sender display name")
	cmd.Flags().StringSliceVar(&to, "to", nil, "recipient addresses")
	cmd.Flags().StringVar(&templateName, "template", "", "template name")
	cmd.Flags().StringSliceVar(&props, "prop", nil, "template properties as key=value")
	return cmd
}

func newTemplatesCommand(server *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage email templates",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		RunE: func(c *cobra.Command, _ []string) error {
			templates, err := NewClient(*server).ListTemplates(c.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), prettyJSON(templates))
			return nil
		},
	})
	return cmd
}

func newGetCommand(server *string) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch a message record by id",
		RunE: func(c *cobra.Command, _ []string) error {
			msg, err := NewClient(*server).GetMessage(c.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), prettyJSON(msg))
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "message id")
	return cmd
}
