package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/busgate/internal/catalog"
	"github.com/ppiankov/busgate/internal/config"
	"github.com/ppiankov/busgate/internal/policy"
)

var (
	catalogFormat  string
	catalogAllowed bool
)

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().StringVarP(&catalogFormat, "format", "f", "text", "Output format (text|json|yaml)")
	catalogCmd.Flags().BoolVar(&catalogAllowed, "allowed", false, "Only list categories allowed at the configured safety level")
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the method categories in classification order",
	Long: "Prints the category catalog (built-in or --catalog) in the order categories are\n" +
		"tried. With --allowed, only the categories usable at the configured level.",
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	cats := cat.Categories()
	if catalogAllowed {
		cats = cat.AllowedAt(policy.ResolveLevel(cfg.SafetyLevel, nil))
	}
	return printCatalog(cmd.OutOrStdout(), cat.Hash(), cats, catalogFormat)
}

func printCatalog(w io.Writer, hash string, cats []catalog.Category, format string) error {
	switch format {
	case "json":
		out, err := json.MarshalIndent(map[string]any{"hash": hash, "categories": cats}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
	case "yaml":
		out, err := catalog.Marshal(cats)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(out))
	case "text":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tTIER\tFLAGS\tPATTERNS")
		for _, c := range cats {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, c.Tier, categoryFlags(c), strings.Join(c.Patterns, " "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%d categories, %s\n", len(cats), hash)
	default:
		return fmt.Errorf("unknown format %q (text|json|yaml)", format)
	}
	return nil
}

func categoryFlags(c catalog.Category) string {
	var flags []string
	if c.Forbidden {
		flags = append(flags, "forbidden")
	}
	if c.RequiresInteraction {
		flags = append(flags, "interaction:"+string(c.Interaction))
	}
	if len(c.Exceptions) > 0 {
		flags = append(flags, fmt.Sprintf("exceptions:%d", len(c.Exceptions)))
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
