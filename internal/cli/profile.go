package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ppiankov/busgate/internal/profile"
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileDetectCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect system profiles",
	Long:  "List, show, and detect the system profiles that switch tool categories on or off.",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available system profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfileList,
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show which tool categories a profile enables",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileShow,
}

var profileDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show the profile and init system detected for this session",
	Args:  cobra.NoArgs,
	RunE:  runProfileDetect,
}

func runProfileList(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	names := profile.List()
	if len(names) == 0 {
		fmt.Fprintln(w, "No profiles available.")
		return nil
	}

	fmt.Fprintln(w, "Available profiles:")
	for _, name := range names {
		p, err := profile.Load(name)
		if err != nil {
			fmt.Fprintf(w, "  %-15s (error loading: %v)\n", name, err)
			continue
		}
		fmt.Fprintf(w, "  %-15s %s\n", name, p.Description)
	}
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	name := args[0]
	p, err := profile.Load(name)
	if err != nil {
		return fmt.Errorf("failed to load profile %q: %w", name, err)
	}
	printProfile(cmd.OutOrStdout(), p)
	return nil
}

func runProfileDetect(cmd *cobra.Command, args []string) error {
	printProfile(cmd.OutOrStdout(), profile.Detect(profile.OSEnv()))
	return nil
}

func printProfile(w io.Writer, p *profile.Static) {
	fmt.Fprintf(w, "Profile: %s (%s)\n", p.Name(), p.Description)
	if p.Init != "" {
		fmt.Fprintf(w, "Init system: %s\n", p.Init)
	}
	if p.RequiresPrivilegedInit() {
		fmt.Fprintln(w, "System tools require systemd.")
	}
	fmt.Fprintln(w)

	cats := p.AvailableCategories()
	names := make([]string, 0, len(cats))
	for name := range cats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Tool categories:")
	for _, name := range names {
		state := "enabled"
		if !cats[name] {
			state = "disabled"
		}
		fmt.Fprintf(w, "  %-15s %s\n", name, state)
	}
}
