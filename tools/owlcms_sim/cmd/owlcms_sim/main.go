// Command owlcms-sim dials a running hub's producer endpoint and replays a
// scripted JSON fixture of database/update/timer/decision frames, printing
// the hub's response envelopes with status-colored output.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	configpkg "github.com/owlcms/competition-hub/internal/config"
	owlcmssim "github.com/owlcms/competition-hub/tools/owlcms_sim"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"})
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})
	boldStyle  = lipgloss.NewStyle().Bold(true)
)

var (
	url     string
	fixture string
	version string
)

var rootCmd = &cobra.Command{
	Use:   "owlcms-sim",
	Short: "Replay a scripted sequence of producer frames against a competition hub",
	Long: `owlcms-sim dials a hub's /ws endpoint as the single allowed producer
connection and sends a scripted fixture of database/update/timer/decision
text frames (and optional database_zip/translations_zip/flags_zip binary
frames), printing each response envelope with status-colored output.

Example:
  owlcms-sim run --url ws://localhost:43127/ws --fixture scenario.json`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Send every frame in the fixture and print the hub's responses",
	RunE:  runFixture,
}

func init() {
	runCmd.Flags().StringVar(&url, "url", "ws://localhost:43127/ws", "WebSocket URL of the hub's producer endpoint")
	runCmd.Flags().StringVar(&fixture, "fixture", "", "path to a JSON fixture of scripted frames (required)")
	runCmd.Flags().StringVar(&version, "version", configpkg.MinimumProtocolVersion, "protocol version stamped on text frames that don't set their own")
	_ = runCmd.MarkFlagRequired("fixture")
	rootCmd.AddCommand(runCmd)
}

func runFixture(cmd *cobra.Command, args []string) error {
	steps, err := owlcmssim.LoadFixture(fixture)
	if err != nil {
		return err
	}

	conn, err := owlcmssim.Dial(url)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Println(boldStyle.Render(fmt.Sprintf("owlcms-sim: %d step(s) against %s", len(steps), url)))

	results, runErr := owlcmssim.Run(conn, version, steps)
	for i, r := range results {
		printResult(i, r)
	}
	if runErr != nil {
		fmt.Println(failStyle.Render(fmt.Sprintf("stopped after %d step(s): %v", len(results), runErr)))
		return runErr
	}
	return nil
}

func printResult(index int, r owlcmssim.Result) {
	status, _ := r.Response["status"].(float64)
	label := fmt.Sprintf("[%2d] %-8s %-16s -> %3.0f", index, r.Step.Kind, r.Step.Type, status)

	switch {
	case status >= 200 && status < 300:
		fmt.Println(okStyle.Render(label))
	case status == 428 || status == 202:
		fmt.Println(warnStyle.Render(label))
	case status >= 400:
		fmt.Println(failStyle.Render(label))
	default:
		fmt.Println(mutedStyle.Render(label))
	}

	if reason, ok := r.Response["reason"].(string); ok && reason != "" {
		fmt.Println(mutedStyle.Render("     reason: " + reason))
	}
	if missing, ok := r.Response["missing"].([]interface{}); ok && len(missing) > 0 {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("     missing: %v", missing)))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
