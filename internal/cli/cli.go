package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"github.com/vk/promptgrid/internal/app"
	"github.com/vk/promptgrid/internal/executor"
	"github.com/vk/promptgrid/internal/script"
	"github.com/vk/promptgrid/internal/validate"
	"github.com/vk/promptgrid/internal/vars"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitUsage     = 2
	ExitCancelled = 130
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// Execute runs the command line in args. Results go to outW, logs and help
// for errors to errW. Any error returned is an *ExitError.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	return execute(ctx, NewRootCmd(outW, errW, nil), args)
}

func execute(ctx context.Context, root *cobra.Command, args []string) error {
	root.SetArgs(args)
	cmd, err := root.ExecuteContextC(ctx)
	if err != nil && cmd == root {
		// The root only fails on an unknown command or flag.
		var exitErr *ExitError
		if !errors.As(err, &exitErr) {
			return usageError(err)
		}
	}
	return toExitError(err)
}

// toExitError maps an application error to the exit code it stands for.
func toExitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}

	var (
		parseErr      *script.ParseError
		unresolvedErr *vars.UnresolvedVariableError
		inputErr      *vars.InputError
		validationErr *validate.ValidationError
		cancelledErr  *executor.CancelledError
	)
	switch {
	case errors.As(err, &cancelledErr), errors.Is(err, context.Canceled):
		return &ExitError{Code: ExitCancelled, Message: err.Error()}
	case errors.Is(err, app.ErrVariableSource),
		errors.As(err, &parseErr),
		errors.As(err, &unresolvedErr),
		errors.As(err, &inputErr),
		errors.As(err, &validationErr):
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	default:
		return &ExitError{Code: ExitFailure, Message: err.Error()}
	}
}
