package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"content_agents/agents"
	"content_agents/agents/comic"
	"content_agents/agents/content"
	"content_agents/agents/excel"
	"content_agents/agents/xiaohongshu"
)

var (
	runSRT         string
	runText        string
	runDescription string
	runStyle       string
	runTopic       string
	runPick        int
	runExcel       string
	runSheet       string
)

var runCmd = &cobra.Command{
	Use:   "run <agent>",
	Short: "Run one agent pipeline to completion (or to its interrupt point)",
	Long: `Runs a registered agent: content | comic | xiaohongshu | excel.

Examples:
  content-agents run content --srt demo.srt
  content-agents run comic --description "一只橘猫第一次坐地铁" --style "水彩"
  content-agents run xiaohongshu --pick 0
  content-agents run excel --excel sales.xlsx --sheet Sheet1

xiaohongshu without --topic stops after generating topics; pass --pick N to
continue with the N-th topic in the same process, or resume the run later
(needs redis.url so the paused run survives the process).`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{content.Name, comic.Name, xiaohongshu.Name, excel.Name},
	RunE:      runAgent,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runSRT, "srt", "", "subtitle file name under data_dir (content)")
	f.StringVar(&runText, "text", "", "path to a plain text subtitle to use instead of --srt (content)")
	f.StringVar(&runDescription, "description", "", "story description (comic)")
	f.StringVar(&runStyle, "style", "", "drawing style (comic)")
	f.StringVar(&runTopic, "topic", "", "selected topic, skips topic generation (xiaohongshu)")
	f.IntVar(&runPick, "pick", -1, "pick the N-th generated topic and continue (xiaohongshu)")
	f.StringVar(&runExcel, "excel", "", "workbook file name under data_dir (excel)")
	f.StringVar(&runSheet, "sheet", "", "sheet name, defaults to the first sheet (excel)")
}

// seedFor 把命令行参数写成流水线的初始状态。
func seedFor(agent string) (json.RawMessage, error) {
	seed := []byte(`{}`)
	set := func(path, value string) error {
		if value == "" {
			return nil
		}
		var err error
		seed, err = sjson.SetBytes(seed, path, value)
		return err
	}

	var err error
	switch agent {
	case content.Name:
		if runText != "" {
			data, rerr := os.ReadFile(runText)
			if rerr != nil {
				return nil, fmt.Errorf("read text: %w", rerr)
			}
			err = set("subtitle_text", string(data))
		} else {
			err = set("subtitle_source", runSRT)
		}
	case comic.Name:
		if err = set("description", runDescription); err == nil {
			err = set("comic_info.style", runStyle)
		}
	case xiaohongshu.Name:
		err = set("selected_topic", strings.TrimSpace(runTopic))
	case excel.Name:
		if err = set("excel_path", runExcel); err == nil {
			err = set("sheet", runSheet)
		}
	}
	if err != nil {
		return nil, err
	}
	return seed, nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	agent := args[0]
	if !a.registry.Has(agent) {
		return fmt.Errorf("unknown agent %q (available: %s)", agent, strings.Join(a.registry.Names(), ", "))
	}
	seed, err := seedFor(agent)
	if err != nil {
		return err
	}
	res, err := a.registry.Start(ctx, agent, seed)
	if err != nil {
		printFailure(res)
		return err
	}

	if res.Status == agents.StatusInterrupted && agent == xiaohongshu.Name && runPick >= 0 {
		topic := gjson.GetBytes(res.State, fmt.Sprintf("topics.%d", runPick)).String()
		if topic == "" {
			printResult(res)
			return fmt.Errorf("no topic at index %d", runPick)
		}
		patch, _ := sjson.SetBytes([]byte(`{}`), "selected_topic", topic)
		res, err = a.registry.Resume(ctx, res.RunID, patch)
		if err != nil {
			printFailure(res)
			return err
		}
	}
	printResult(res)
	return nil
}

// printFailure 只报告中止的运行与阶段，不输出中间状态。
func printFailure(res agents.RunResult) {
	if res.RunID == "" {
		return
	}
	fmt.Printf("run %s (%s): %s at %s\n", res.RunID, res.Agent, agents.StatusFailed, res.Next)
}

// printResult 先打印摘要，再输出完整的 JSON 结果。
func printResult(res agents.RunResult) {
	state := gjson.ParseBytes(res.State)
	fmt.Printf("run %s (%s): %s\n", res.RunID, res.Agent, res.Status)
	if res.Next != "" {
		fmt.Printf("  next stage: %s\n", res.Next)
	}
	for _, w := range state.Get("warnings").Array() {
		fmt.Printf("  warning: %s\n", w.String())
	}
	if topics := state.Get("topics"); res.Status == agents.StatusInterrupted && topics.IsArray() {
		for i, t := range topics.Array() {
			fmt.Printf("  [%d] %s\n", i, t.String())
		}
		fmt.Printf("\nUse: content-agents resume %s --topic <topic>\n", res.RunID)
	}
	if saved := state.Get("saved_file_path").String(); saved != "" {
		fmt.Printf("  saved: %s\n", saved)
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(out))
}

var resumePatch string

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume an interrupted run",
	Long: `Resumes a run stopped at its interrupt point. The patch is merged into the
saved state before continuing.

Examples:
  content-agents resume 01J9Z... --topic "周末不内耗指南"
  content-agents resume 01J9Z... --patch '{"selected_topic":"周末不内耗指南"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumePatch, "patch", "", "JSON object merged into the saved state")
	resumeCmd.Flags().StringVar(&runTopic, "topic", "", "shorthand for --patch '{\"selected_topic\": ...}'")
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	patch := []byte(`{}`)
	if resumePatch != "" {
		if !gjson.Valid(resumePatch) {
			return errors.New("--patch must be a JSON object")
		}
		patch = []byte(resumePatch)
	}
	if t := strings.TrimSpace(runTopic); t != "" {
		if patch, err = sjson.SetBytes(patch, "selected_topic", t); err != nil {
			return err
		}
	}
	res, err := a.registry.Resume(ctx, args[0], patch)
	if err != nil {
		printFailure(res)
		return err
	}
	printResult(res)
	return nil
}
