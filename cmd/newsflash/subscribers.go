package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/newsflash/internal/email"
	"github.com/foxzi/newsflash/internal/models"
	"github.com/foxzi/newsflash/internal/newsletter"
)

var (
	subscribersSearch     string
	subscribersActiveOnly bool
	subscribersLimit      int
	subscribersOffset     int
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <email>",
	Short: "Subscribe an address and send the welcome email",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscribe,
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <token>",
	Short: "Deactivate the subscription owning an unsubscribe token",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnsubscribe,
}

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "Subscriber commands",
}

var subscribersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribers",
	RunE:  runSubscribersList,
}

func init() {
	subscribersListCmd.Flags().StringVar(&subscribersSearch, "search", "", "Filter by address substring")
	subscribersListCmd.Flags().BoolVar(&subscribersActiveOnly, "active", false, "Only active subscribers")
	subscribersListCmd.Flags().IntVar(&subscribersLimit, "limit", 50, "Maximum number of subscribers")
	subscribersListCmd.Flags().IntVar(&subscribersOffset, "offset", 0, "Skip this many subscribers")

	subscribersCmd.AddCommand(subscribersListCmd)
	rootCmd.AddCommand(subscribeCmd, unsubscribeCmd, subscribersCmd)
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	addr, err := email.Validate(args[0])
	if err != nil {
		return fmt.Errorf("%q: %w", args[0], err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.Dispatcher().Subscribe(context.Background(), addr)
	fmt.Printf("%s (%s)\n", res.Message, res.Outcome)
	if res.Success() {
		fmt.Printf("Welcome email sent: %t\n", res.Welcome)
	}
	if res.Outcome == newsletter.OutcomeFailed {
		return fmt.Errorf("subscribe failed")
	}
	return nil
}

func runUnsubscribe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.Dispatcher().Unsubscribe(context.Background(), args[0])
	fmt.Printf("%s (%s)\n", res.Message, res.Outcome)
	if res.Outcome == newsletter.UnsubscribeFailed {
		return fmt.Errorf("unsubscribe failed")
	}
	return nil
}

func runSubscribersList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	filter := models.SubscriberFilter{
		Search: subscribersSearch,
		Limit:  subscribersLimit,
		Offset: subscribersOffset,
	}
	if subscribersActiveOnly {
		active := true
		filter.Active = &active
	}

	subs, total, err := a.Subscribers().List(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to list subscribers: %w", err)
	}

	if len(subs) == 0 {
		fmt.Println("No subscribers")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tACTIVE\tSUBSCRIBED\tSENT\tLAST SENT")
	fmt.Fprintln(w, "-----\t------\t----------\t----\t---------")

	for _, s := range subs {
		lastSent := "-"
		if s.LastSentAt != nil {
			lastSent = s.LastSentAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%s\n",
			s.Email,
			s.Active,
			s.SubscribedAt.Format("2006-01-02 15:04"),
			s.SentCount,
			lastSent,
		)
	}

	w.Flush()
	fmt.Printf("\nShowing %d of %d subscribers\n", len(subs), total)
	return nil
}
