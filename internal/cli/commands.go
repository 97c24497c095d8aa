package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vk/promptgrid/internal/app"
	"github.com/vk/promptgrid/internal/config"
)

const rootLong = `promptgrid - a declarative image generation workflow runner.

A workflow script declares variables and steps; each step is one call to an
image generation backend. promptgrid resolves the variables, validates the
script, expands it into a plan and runs the plan with a bounded worker pool.`

// NewRootCmd builds the command tree. Results go to outW and logs to errW.
// lookup reads the environment; nil means the process environment.
func NewRootCmd(outW, errW io.Writer, lookup config.LookupFunc) *cobra.Command {
	o := &options{lookup: lookup, outW: outW, errW: errW}

	root := &cobra.Command{
		Use:           "promptgrid",
		Short:         "Run declarative image generation workflows",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
	o.addSharedFlags(root)

	root.AddCommand(
		newValidateCmd(o),
		newPlanCmd(o),
		newRunCmd(o),
		newHealthCmd(o),
		newWatchCmd(o),
	)
	return root
}

// scriptArg requires exactly one script path.
func scriptArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return usageError(fmt.Errorf("%s expects exactly one script path, got %d", cmd.CommandPath(), len(args)))
	}
	return nil
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError(fmt.Errorf("%s takes no arguments, got %q", cmd.CommandPath(), args))
	}
	return nil
}

func newValidateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <script>",
		Short: "Check a script without running it",
		Long:  "Parse the script, resolve its variables and report every problem found. No network or file writes.",
		Args:  scriptArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := a.Validate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(o.outW, "%s is valid: %d step(s), %d variable(s).\n", args[0], len(w.Script.Steps), len(w.Script.Variables))
			return nil
		},
	}
}

func newPlanCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <script>",
		Short: "Print the expanded plan of a script",
		Long:  "Validate the script and print every step instance it expands to, in execution order. No network.",
		Args:  scriptArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.PrintPlan(cmd.Context())
		},
	}
}

func newRunCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a script",
		Long: `Validate, plan and run the script, then print the run summary.

Exits 0 when every step succeeded, 1 when a step failed or timed out (unless
--allow-partial), 2 when the script is invalid and 130 when interrupted.`,
		Args: scriptArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Run(cmd.Context())
			if err != nil {
				return err
			}
			if summary.OK() || o.allowPartial {
				return nil
			}
			return &ExitError{
				Code:    ExitFailure,
				Message: fmt.Sprintf("run %s: %d of %d step(s) failed or timed out", summary.Status, summary.Unsuccessful(), summary.Counts.Total),
			}
		},
	}
	o.addRunFlags(cmd)
	return cmd
}

func newHealthCmd(o *options) *cobra.Command {
	var adapterName string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the image generation endpoint answers",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Health(cmd.Context(), adapterName)
		},
	}
	cmd.Flags().StringVar(&adapterName, "adapter", app.DefaultHealthAdapter, "Adapter whose protocol is used to probe the endpoint.")
	return cmd
}

func newWatchCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <script>",
		Short: "Re-validate and re-plan a script on every save",
		Args:  scriptArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Watch(cmd.Context())
		},
	}
}
