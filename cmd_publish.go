package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"content_agents/publisher"
)

var (
	pubTitle  string
	pubAuthor string
	pubDigest string
	pubCover  string
)

var publishCmd = &cobra.Command{
	Use:   "publish <record-id>",
	Short: "Publish a saved article to the WeChat draft box",
	Long: `Builds a draft from a saved record (title, digest and article markdown) and
uploads it to the WeChat official account configured under wechat.

Records without images need --cover.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func init() {
	f := publishCmd.Flags()
	f.StringVar(&convFamily, "family", "conversations", "record family: conversations | comics | excel")
	f.StringVar(&pubTitle, "title", "", "override the article title")
	f.StringVar(&pubAuthor, "author", "", "override wechat.author")
	f.StringVar(&pubDigest, "digest", "", "override the digest")
	f.StringVar(&pubCover, "cover", "", "path to the cover image")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.publisher == nil {
		return errors.New("wechat publisher not configured (wechat.app_id / wechat.app_secret)")
	}

	sink, err := a.sink(convFamily)
	if err != nil {
		return err
	}
	rec, err := sink.Get(args[0])
	if err != nil {
		return err
	}
	draft := publisher.DraftFromRecord(rec, sink.Dir)
	if pubTitle != "" {
		draft.Title = pubTitle
	}
	if pubAuthor != "" {
		draft.Author = pubAuthor
	}
	if pubDigest != "" {
		draft.Digest = pubDigest
	}
	if pubCover != "" {
		draft.CoverPath = pubCover
	}

	logger.Info("publishing", zap.String("id", args[0]), zap.String("title", draft.Title), zap.String("cover", draft.CoverPath))
	mediaID, err := a.publisher.PublishDraft(ctx, draft)
	if err != nil {
		return err
	}
	logger.Info("publish done", zap.String("media_id", mediaID))
	fmt.Println(mediaID)
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Print(a.cfg.String())
		fmt.Printf("agents: %v\n", a.registry.Names())
		return nil
	},
}
