package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"content_agents/persist"
	"content_agents/server"
)

var (
	convFamily string
	convRecent int
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "List, show and delete saved run records",
	Long: `Saved records live under output_dir/<family>, one JSON file per run.

Families: conversations (content, xiaohongshu), comics, excel.`,
	RunE: runConversationsList,
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved records of a family",
	Args:  cobra.NoArgs,
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one saved record",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one saved record",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

func init() {
	conversationsCmd.PersistentFlags().StringVar(&convFamily, "family", server.FamilyConversations, "record family: conversations | comics | excel")
	conversationsListCmd.Flags().IntVar(&convRecent, "recent", 0, "show the N most recent saves (all families when index_path is set)")
	conversationsCmd.AddCommand(conversationsListCmd, conversationsShowCmd, conversationsDeleteCmd)
}

func (a *app) sink(family string) (*persist.Sink, error) {
	sink, ok := a.families[family]
	if !ok {
		return nil, fmt.Errorf("unknown family %q", family)
	}
	return sink, nil
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if convRecent > 0 && a.index == nil {
		// 没有索引库时按文件修改时间取最近的记录
		sink, err := a.sink(convFamily)
		if err != nil {
			return err
		}
		paths, err := sink.Latest(convRecent)
		if err != nil {
			return fmt.Errorf("failed to list records: %w", err)
		}
		for _, p := range paths {
			fmt.Printf("  %s\n", p)
		}
		return nil
	}
	if convRecent > 0 {
		entries, err := a.index.List(ctx, "", convRecent)
		if err != nil {
			return fmt.Errorf("failed to list index: %w", err)
		}
		for _, e := range entries {
			fmt.Printf("  %s  %-12s %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Pipeline, e.Path)
		}
		return nil
	}

	sink, err := a.sink(convFamily)
	if err != nil {
		return err
	}
	records, err := sink.List()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No saved records found.")
		return nil
	}
	fmt.Printf("Saved records (%s)\n", sink.Dir)
	fmt.Println(strings.Repeat("─", 50))
	for i, r := range records {
		fmt.Printf("  %d. %s  (%d bytes)\n", i+1, r.ID, r.Size)
	}
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("Total: %d records\n", len(records))
	return nil
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sink, err := a.sink(convFamily)
	if err != nil {
		return err
	}
	rec, err := sink.Get(args[0])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sink, err := a.sink(convFamily)
	if err != nil {
		return err
	}
	if err := sink.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Conversation %s deleted\n", args[0])
	return nil
}
