package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/newsflash/internal/email"
)

var (
	newsletterTestEmail string
	newsletterLimit     int
)

var newsletterCmd = &cobra.Command{
	Use:   "newsletter",
	Short: "Newsletter commands",
}

var newsletterSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send the digest of the latest published articles",
	Long: `Send the digest of the latest published articles to every active
subscriber. With --test only the given address receives it and no
subscriber record is changed.`,
	RunE: runNewsletterSend,
}

var newsletterStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show subscriber, article and delivery statistics",
	RunE:  runNewsletterStats,
}

func init() {
	newsletterSendCmd.Flags().StringVar(&newsletterTestEmail, "test", "", "Send only to this address")
	newsletterSendCmd.Flags().IntVar(&newsletterLimit, "limit", 0, "Number of articles (default: newsletter.digest_size)")

	newsletterCmd.AddCommand(newsletterSendCmd, newsletterStatsCmd)
	rootCmd.AddCommand(newsletterCmd)
}

func runNewsletterSend(cmd *cobra.Command, args []string) error {
	testEmail := ""
	if newsletterTestEmail != "" {
		addr, err := email.Validate(newsletterTestEmail)
		if err != nil {
			return fmt.Errorf("--test %q: %w", newsletterTestEmail, err)
		}
		testEmail = addr
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	limit := newsletterLimit
	if limit <= 0 {
		limit = cfg.Newsletter.DigestSize
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	articles, err := a.Articles().ListRecentPublished(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to load articles: %w", err)
	}

	res := a.Dispatcher().SendNewsletter(ctx, articles, testEmail)
	fmt.Println(res.Message)
	if res.Attempted > 0 {
		fmt.Printf("  Attempted: %d\n", res.Attempted)
		fmt.Printf("  Sent:      %d\n", res.Sent)
		fmt.Printf("  Failed:    %d\n", res.Failed)
	}
	if res.StatsError != "" {
		fmt.Printf("  Warning: subscriber counters not updated: %s\n", res.StatsError)
	}
	return nil
}

func runNewsletterStats(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Printf("Newsletter Statistics\n")
	fmt.Printf("=====================\n\n")
	fmt.Printf("Active subscribers:  %d\n", stats.ActiveSubscribers)
	fmt.Printf("Published articles:  %d\n", stats.PublishedArticles)
	fmt.Printf("Emails sent today:   %d\n", stats.EmailsSentToday)
	if d := stats.Deliveries; d != nil {
		fmt.Printf("\nDelivery log:\n")
		fmt.Printf("  Pending: %d\n", d.Pending)
		fmt.Printf("  Sent:    %d\n", d.Sent)
		fmt.Printf("  Failed:  %d\n", d.Failed)
		fmt.Printf("  Total:   %d\n", d.Total)
	}
	return nil
}
