package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	cliJSON bool
	cliPort string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llm-council",
		Short: "Ask several LLMs, let them rank each other, and synthesize one answer",
		Long: `LLM Council sends a question to every council model, has each model rank
its peers' anonymized answers, and asks a chairman model to synthesize a final answer.

Models are addressed as:
  openai/gpt-5.1                     direct OpenAI
  anthropic/claude-sonnet-4-5        direct Anthropic
  openrouter:google/gemini-2.5-pro   OpenRouter
  x-ai/grok-4                        OpenRouter (fallback)
  cli:claude                         local CLI tool

Running without a subcommand starts the API server.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.AddCommand(newServeCmd(), newAskCmd(), newDoctorCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&cliPort, "port", "", "Port to listen on (overrides PORT)")
	return cmd
}

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Run one council turn and print the result",
		Long: `Run the full three-stage council on a question without saving a conversation.

Examples:
  llm-council ask "What is the CAP theorem?"
  llm-council ask --json "Compare Raft and Paxos" > result.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}
	cmd.Flags().BoolVar(&cliJSON, "json", false, "Output as JSON")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check provider credentials, CLI tools and council readiness",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
	cmd.Flags().BoolVar(&cliJSON, "json", false, "Output as JSON")
	return cmd
}

func loadApp() (*App, error) {
	cfg := LoadConfig()
	SetupLogger(cfg)
	return buildApp(cfg)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	if cliPort != "" {
		app.Config.Port = cliPort
	}
	return runServer(cmd.Context(), app)
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	styled := !cliJSON && isTerminal(cmd.OutOrStdout())
	progress := cmd.ErrOrStderr()

	hooks := &stageHooks{
		stage1Start: func() { fmt.Fprintln(progress, "Stage 1: collecting individual responses...") },
		stage2Start: func() { fmt.Fprintln(progress, "Stage 2: collecting peer rankings...") },
		stage3Start: func() { fmt.Fprintln(progress, "Stage 3: chairman is synthesizing...") },
	}
	if cliJSON {
		hooks = nil
	}

	result, err := app.Council.run(cmd.Context(), question, hooks)
	if err != nil {
		return err
	}

	if cliJSON {
		return writeJSON(cmd.OutOrStdout(), SendMessageResponse{
			Stage1:   result.Stage1,
			Stage2:   result.Stage2,
			Stage3:   result.Stage3,
			Metadata: result.Metadata,
		})
	}
	return displayRunResult(cmd.OutOrStdout(), result, styled)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	report, err := app.Health.Check(cmd.Context(), true)
	if err != nil {
		return err
	}

	if cliJSON {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	displayHealthReport(cmd.OutOrStdout(), report, isTerminal(cmd.OutOrStdout()))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

type cliStyles struct {
	title lipgloss.Style
	good  lipgloss.Style
	bad   lipgloss.Style
	faint lipgloss.Style
}

func newCLIStyles(styled bool) cliStyles {
	if !styled {
		plain := lipgloss.NewStyle()
		return cliStyles{title: plain, good: plain, bad: plain, faint: plain}
	}
	return cliStyles{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		good:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		bad:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		faint: lipgloss.NewStyle().Faint(true),
	}
}

// displayRunResult prints the chairman's answer followed by the peer standings.
func displayRunResult(w io.Writer, result RunResult, styled bool) error {
	st := newCLIStyles(styled)

	fmt.Fprintln(w)
	fmt.Fprintln(w, st.title.Render("Council answer (chairman: "+result.Stage3.Model+")"))
	fmt.Fprintln(w, strings.Repeat("━", 50))

	if result.Stage3.Failed {
		fmt.Fprintln(w, st.bad.Render("Chairman failed: "+result.Stage3.Error))
	} else {
		answer := result.Stage3.Response
		if styled {
			renderer, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(100),
			)
			if err == nil {
				if rendered, err := renderer.Render(answer); err == nil {
					answer = rendered
				}
			}
		}
		fmt.Fprintln(w, answer)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, st.title.Render("Peer standings"))
	for i, agg := range result.Metadata.AggregateRankings {
		line := fmt.Sprintf("%d. %s  score %d", i+1, agg.Model, agg.Score)
		if agg.RankingsCount > 0 {
			line += st.faint.Render(fmt.Sprintf("  (avg rank %.2f over %d rankings)", agg.AverageRank, agg.RankingsCount))
		}
		fmt.Fprintln(w, line)
	}

	if len(result.Metadata.FailedModels) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.bad.Render("Failed: "+strings.Join(result.Metadata.FailedModels, ", ")))
	}
	return nil
}

// displayHealthReport prints the doctor report as a checklist.
func displayHealthReport(w io.Writer, report HealthReport, styled bool) {
	st := newCLIStyles(styled)
	mark := func(ok bool) string {
		if ok {
			return st.good.Render("✓")
		}
		return st.bad.Render("✗")
	}

	fmt.Fprintln(w, st.title.Render("API keys"))
	for _, name := range []string{RouteOpenRouter.String(), RouteOpenAI.String(), RouteAnthropic.String()} {
		key := report.APIKeys[name]
		fmt.Fprintf(w, "  %s %s %s\n", mark(key.Configured), name, st.faint.Render(key.KeyPreview))
	}

	fmt.Fprintln(w, st.title.Render("CLI tools"))
	for _, name := range slices.Sorted(maps.Keys(report.CLITools)) {
		tool := report.CLITools[name]
		fmt.Fprintf(w, "  %s %s %s\n", mark(tool.Available), name, st.faint.Render(tool.Path))
	}

	fmt.Fprintln(w, st.title.Render("Council"))
	for _, model := range report.CouncilModels {
		fmt.Fprintf(w, "  %s %s %s\n", mark(model.Ready), model.Identifier, st.faint.Render(model.Type))
	}
	fmt.Fprintf(w, "  %s %s %s\n", mark(report.ChairmanModel.Ready), report.ChairmanModel.Identifier, st.faint.Render("chairman"))

	status := st.good.Render(report.Status)
	if report.Status != StatusHealthy {
		status = st.bad.Render(report.Status)
	}
	fmt.Fprintf(w, "\nStatus: %s\n", status)
}
