package main

import (
	"encoding/json"
	"os"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/qa"
	notionpkg "github.com/parcelscope/zoning-cli/pkg/notion"
)

var qaCmd = &cobra.Command{
	Use:   "qa",
	Short: "Work the extraction rejection review queue",
}

func newReviewer() (*qa.Reviewer, error) {
	if cfg.Notion.Token == "" || cfg.Notion.ReviewDB == "" {
		return nil, eris.New("notion token and review database are required (ZONING_NOTION_TOKEN, ZONING_NOTION_REVIEW_DB)")
	}
	return qa.NewReviewer(notionpkg.NewClient(cfg.Notion.Token), cfg.Notion.ReviewDB), nil
}

var qaOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "List rejections awaiting review",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newReviewer()
		if err != nil {
			return err
		}

		pages, err := r.ListOpen(cmd.Context())
		if err != nil {
			return err
		}

		out := make([]map[string]string, 0, len(pages))
		for _, p := range pages {
			out = append(out, map[string]string{
				"page_id":      string(p.ID),
				"jurisdiction": titleText(p),
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var qaResolveCmd = &cobra.Command{
	Use:   "resolve <page-id>",
	Short: "Mark a review page as resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newReviewer()
		if err != nil {
			return err
		}

		if err := r.Resolve(cmd.Context(), args[0]); err != nil {
			return err
		}
		zap.L().Info("review resolved", zap.String("page_id", args[0]))
		return nil
	},
}

func titleText(p notionapi.Page) string {
	tp, ok := p.Properties["Jurisdiction"].(*notionapi.TitleProperty)
	if !ok || len(tp.Title) == 0 {
		return ""
	}
	return tp.Title[0].PlainText
}

func init() {
	qaCmd.AddCommand(qaOpenCmd)
	qaCmd.AddCommand(qaResolveCmd)
	rootCmd.AddCommand(qaCmd)
}
