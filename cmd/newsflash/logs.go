package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/newsflash/internal/email"
	"github.com/foxzi/newsflash/internal/models"
)

var (
	logsRecipient string
	logsStatus    string
	logsCategory  string
	logsLimit     int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Delivery log commands",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List delivery attempts, newest first",
	RunE:  runLogsList,
}

func init() {
	logsListCmd.Flags().StringVar(&logsRecipient, "recipient", "", "Filter by recipient address")
	logsListCmd.Flags().StringVar(&logsStatus, "status", "", "Filter by status (pending, sent, failed)")
	logsListCmd.Flags().StringVar(&logsCategory, "category", "", "Filter by category (welcome, newsletter, general)")
	logsListCmd.Flags().IntVar(&logsLimit, "limit", 50, "Maximum number of entries")

	logsCmd.AddCommand(logsListCmd)
	rootCmd.AddCommand(logsCmd)
}

func runLogsList(cmd *cobra.Command, args []string) error {
	filter := models.DeliveryLogFilter{
		Recipient: email.Normalize(logsRecipient),
		Status:    models.DeliveryStatus(logsStatus),
		Category:  models.Category(logsCategory),
		Limit:     logsLimit,
	}
	if filter.Status != "" && filter.Status != models.DeliveryPending && !filter.Status.Terminal() {
		return fmt.Errorf("invalid status: %s", logsStatus)
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return fmt.Errorf("invalid category: %s", logsCategory)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entries, total, err := a.Logs().List(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to list logs: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No delivery attempts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tRECIPIENT\tCATEGORY\tSTATUS\tSUBJECT\tERROR")
	fmt.Fprintln(w, "-------\t---------\t--------\t------\t-------\t-----")

	for _, e := range entries {
		errMsg := e.Error
		if errMsg == "" {
			errMsg = "-"
		} else if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		subject := e.Subject
		if len(subject) > 40 {
			subject = subject[:37] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.RecipientEmail,
			e.Category,
			e.Status,
			subject,
			errMsg,
		)
	}

	w.Flush()
	fmt.Printf("\nShowing %d of %d entries\n", len(entries), total)
	return nil
}
