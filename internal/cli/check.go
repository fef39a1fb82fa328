package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/busgate/internal/model"
	"github.com/ppiankov/busgate/internal/policy"
)

var (
	checkService string
	checkTool    string
	checkFormat  string
)

// errDenied makes a denied check exit non-zero. The decision itself has
// already been printed.
var errDenied = errors.New("denied")

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkService, "service", "", "Destination bus name, for per-service exceptions")
	checkCmd.Flags().StringVar(&checkTool, "tool", "", "Check a tool operation (e.g. clipboard.write) instead of a method")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
}

var checkCmd = &cobra.Command{
	Use:   "check [interface.]method",
	Short: "Show the policy decision for a bus method or tool",
	Long: "Classifies a method against the catalog and authorizes it at the configured\n" +
		"safety level, or runs a tool operation through the profile and forbidden-list\n" +
		"checks with --tool. Nothing is called.\n\n" +
		"Exit code 0 if allowed, 1 if denied.",
	Args: func(cmd *cobra.Command, args []string) error {
		if checkTool != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(cmd, nil)
	if err != nil {
		return err
	}

	var d model.Decision
	if checkTool != "" {
		d = rt.engine.CheckOperation(checkTool, nil, rt.profile)
	} else {
		d = decideMethod(rt.engine, checkService, args[0])
	}

	if err := printDecision(cmd.OutOrStdout(), d, checkFormat); err != nil {
		return err
	}
	if !d.Allowed {
		return errDenied
	}
	return nil
}

// decideMethod accepts either a bare member name or "interface.Member".
func decideMethod(e *policy.Engine, service, target string) model.Decision {
	method := target
	if i := strings.LastIndexByte(target, '.'); i >= 0 {
		method = target[i+1:]
	}
	return e.Classify(service, method)
}

func printDecision(w io.Writer, d model.Decision, format string) error {
	switch format {
	case "json":
		out, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
	case "text":
		status := "ALLOWED"
		if !d.Allowed {
			status = "DENIED"
		}
		fmt.Fprintf(w, "%s (%s): %s\n", status, d.Verdict, d.Reason)
		if d.Category != "" {
			fmt.Fprintf(w, "  category: %s (tier %s)\n", d.Category, d.Tier)
		}
		if d.Interaction != nil {
			fmt.Fprintf(w, "  interaction: %s\n", d.Interaction.Message)
		}
	default:
		return fmt.Errorf("unknown format %q (text|json)", format)
	}
	return nil
}
