package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/maru-labs/maru/internal/statusquery"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Show the status-query whitelist",
	Long: `Show the whitelisted metrics, filter columns, and scopes the
status-query executor accepts. Anything outside this registry is rejected
before SQL synthesis.`,
	RunE: runRegistry,
}

func init() {
	rootCmd.AddCommand(registryCmd)
}

func runRegistry(cmd *cobra.Command, args []string) error {
	registry, err := statusquery.LoadRegistry()
	if err != nil {
		return err
	}

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F780FF")).
		Bold(true)

	nameStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#8BE9FD"))

	detailStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6272A4"))

	fmt.Println(headerStyle.Render("Metrics:"))
	for _, name := range registry.MetricNames() {
		def := registry.Metrics[name]
		fmt.Printf("  %s %s\n",
			nameStyle.Render(name),
			detailStyle.Render(fmt.Sprintf("(%s) %s", def.Unit, def.Description)))
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Filter columns:"))
	for _, column := range registry.Filters {
		fmt.Println("  " + nameStyle.Render(column))
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Scopes:"))
	for _, scope := range registry.Scopes {
		fmt.Println("  " + nameStyle.Render(scope))
	}

	return nil
}
