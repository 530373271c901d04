package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/newsflash/internal/models"
)

var (
	articleTitle    string
	articleContent  string
	articleFile     string
	articleSummary  string
	articleCategory string
	articleBreaking bool
	articleDraft    bool
	articlesLimit   int
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Article commands",
}

var articlesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an article",
	RunE:  runArticlesAdd,
}

var articlesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the latest published articles",
	RunE:  runArticlesList,
}

func init() {
	articlesAddCmd.Flags().StringVar(&articleTitle, "title", "", "Article title (required)")
	articlesAddCmd.Flags().StringVar(&articleContent, "content", "", "Article body")
	articlesAddCmd.Flags().StringVar(&articleFile, "content-file", "", "Read the article body from a file")
	articlesAddCmd.Flags().StringVar(&articleSummary, "summary", "", "Short summary shown in the digest")
	articlesAddCmd.Flags().StringVar(&articleCategory, "category", "General", "Category")
	articlesAddCmd.Flags().BoolVar(&articleBreaking, "breaking", false, "Mark as breaking news")
	articlesAddCmd.Flags().BoolVar(&articleDraft, "draft", false, "Store without publishing")
	articlesAddCmd.MarkFlagRequired("title")

	articlesListCmd.Flags().IntVar(&articlesLimit, "limit", 20, "Maximum number of articles")

	articlesCmd.AddCommand(articlesAddCmd, articlesListCmd)
	rootCmd.AddCommand(articlesCmd)
}

func runArticlesAdd(cmd *cobra.Command, args []string) error {
	content := articleContent
	if articleFile != "" {
		data, err := os.ReadFile(articleFile)
		if err != nil {
			return fmt.Errorf("failed to read content file: %w", err)
		}
		content = string(data)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	article := &models.Article{
		Title:       strings.TrimSpace(articleTitle),
		Content:     content,
		Summary:     articleSummary,
		Category:    articleCategory,
		IsBreaking:  articleBreaking,
		IsPublished: !articleDraft,
	}
	if err := a.Articles().Create(context.Background(), article); err != nil {
		return err
	}

	fmt.Printf("Article created: %s\n", article.ID)
	return nil
}

func runArticlesList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	articles, err := a.Articles().ListRecentPublished(context.Background(), articlesLimit)
	if err != nil {
		return fmt.Errorf("failed to list articles: %w", err)
	}

	if len(articles) == 0 {
		fmt.Println("No published articles")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tCATEGORY\tBREAKING\tTITLE")
	fmt.Fprintln(w, "--\t-------\t--------\t--------\t-----")

	for _, art := range articles {
		title := art.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
			truncateID(art.ID),
			art.CreatedAt.Format("2006-01-02 15:04"),
			art.Category,
			art.IsBreaking,
			title,
		)
	}

	w.Flush()
	return nil
}

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
