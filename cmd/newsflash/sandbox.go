package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/newsflash/internal/sandbox"
)

var (
	sandboxListRecipient string
	sandboxListLimit     int
	sandboxShowRaw       bool
	sandboxClearOlder    time.Duration
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Inspect mail captured in sandbox mode",
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured messages",
	RunE:  runSandboxList,
}

var sandboxShowCmd = &cobra.Command{
	Use:   "show <message_id>",
	Short: "Show a captured message",
	Args:  cobra.ExactArgs(1),
	RunE:  runSandboxShow,
}

var sandboxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete captured messages",
	RunE:  runSandboxClear,
}

var sandboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sandbox statistics",
	RunE:  runSandboxStats,
}

func init() {
	sandboxListCmd.Flags().StringVar(&sandboxListRecipient, "recipient", "", "Filter by recipient")
	sandboxListCmd.Flags().IntVar(&sandboxListLimit, "limit", 50, "Maximum number of messages")

	sandboxShowCmd.Flags().BoolVar(&sandboxShowRaw, "raw", false, "Print the raw message only")

	sandboxClearCmd.Flags().DurationVar(&sandboxClearOlder, "older-than", 0, "Only delete messages older than this (e.g. 72h)")

	sandboxCmd.AddCommand(sandboxListCmd, sandboxShowCmd, sandboxClearCmd, sandboxStatsCmd)
	rootCmd.AddCommand(sandboxCmd)
}

func openSandboxStorage() (*sandbox.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	storage, err := sandbox.Open(cfg.Storage.SandboxPath)
	if err != nil {
		return nil, err
	}
	return storage, nil
}

func runSandboxList(cmd *cobra.Command, args []string) error {
	storage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	messages, err := storage.List(context.Background(), sandbox.ListFilter{
		Recipient: strings.ToLower(sandboxListRecipient),
		Limit:     sandboxListLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	if len(messages) == 0 {
		fmt.Println("No messages in sandbox")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTO\tSUBJECT\tCAPTURED\tSIMULATED ERROR")
	fmt.Fprintln(w, "--\t--\t-------\t--------\t---------------")

	for _, msg := range messages {
		to := strings.Join(msg.To, ", ")
		if len(to) > 30 {
			to = to[:27] + "..."
		}

		subject := msg.Subject
		if len(subject) > 40 {
			subject = subject[:37] + "..."
		}

		simErr := msg.SimulatedErr
		if simErr == "" {
			simErr = "-"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			msg.ID,
			to,
			subject,
			msg.CapturedAt.Format("2006-01-02 15:04"),
			simErr,
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d messages\n", len(messages))
	return nil
}

func runSandboxShow(cmd *cobra.Command, args []string) error {
	storage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	id := args[0]
	msg, err := storage.Get(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("message not found: %s", id)
	}

	if sandboxShowRaw {
		fmt.Println(string(msg.Data))
		return nil
	}

	fmt.Printf("Message: %s\n\n", msg.ID)
	fmt.Printf("From:     %s\n", msg.From)
	fmt.Printf("To:       %s\n", strings.Join(msg.To, ", "))
	fmt.Printf("Subject:  %s\n", msg.Subject)
	fmt.Printf("Captured: %s\n", msg.CapturedAt.Format(time.RFC3339))
	if msg.SimulatedErr != "" {
		fmt.Printf("Simulated error: %s\n", msg.SimulatedErr)
	}
	fmt.Printf("Size:     %d bytes\n\n", len(msg.Data))
	fmt.Println(string(msg.Data))
	return nil
}

func runSandboxClear(cmd *cobra.Command, args []string) error {
	storage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	n, err := storage.Clear(context.Background(), sandboxClearOlder)
	if err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	fmt.Printf("Deleted %d messages\n", n)
	return nil
}

func runSandboxStats(cmd *cobra.Command, args []string) error {
	storage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	stats, err := storage.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Printf("Sandbox Statistics\n")
	fmt.Printf("==================\n\n")
	fmt.Printf("Total messages:    %d\n", stats.Total)
	fmt.Printf("Simulated failures: %d\n", stats.Failed)
	fmt.Printf("Total size:        %d bytes\n", stats.TotalSize)
	if stats.Total > 0 {
		fmt.Printf("Oldest:            %s\n", stats.OldestAt.Format(time.RFC3339))
		fmt.Printf("Newest:            %s\n", stats.NewestAt.Format(time.RFC3339))
	}
	return nil
}
