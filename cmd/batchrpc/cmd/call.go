package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"batchrpc/internal/exception"
	"batchrpc/internal/future"
	"batchrpc/internal/wire"
)

var callTimeout time.Duration

var callCmd = &cobra.Command{
	Use:   "call <operation> <json-args> [<operation> <json-args>...]",
	Short: "Invoke operations in one burst",
	Long: `Invokes every given operation at once, so calls to the same endpoint
travel in a single batch. Arguments are a JSON array. An explicit version
can be sent with operation@version.

Examples:
  batchrpc call add '[1,2,3]'
  batchrpc call add '[1,2]' greet@2 '["bob"]'`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%2 != 0 {
			return errors.New("expected pairs of operation and JSON arguments")
		}
		return nil
	},
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "how long to wait for all results")
}

type invocation struct {
	label  string
	future *future.Future
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, cfg, logger, err := startClient(ctx)
	if err != nil {
		return err
	}
	defer stopClient(c, cfg, logger)

	d := c.Dispatcher()
	invocations := make([]invocation, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		name, version, hasVersion := strings.Cut(args[i], "@")
		callArgs, err := parseArgs(args[i+1])
		if err != nil {
			return fmt.Errorf("arguments of %s: %w", name, err)
		}

		var f *future.Future
		if hasVersion {
			f, err = d.InvokeVersion(name, version, callArgs...)
		} else {
			f, err = d.Invoke(name, callArgs...)
		}
		if err != nil {
			return err
		}
		invocations = append(invocations, invocation{
			label:  wire.NewCall(name, version, callArgs).String(),
			future: f,
		})
	}

	waitCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	failed := 0
	for _, inv := range invocations {
		result, err := inv.future.Wait(waitCtx)
		if err != nil {
			failed++
			printFailure(out, inv.label, err)
			continue
		}
		if len(result) == 0 {
			result = json.RawMessage("null")
		}
		fmt.Fprintf(out, "%s = %s\n", inv.label, result)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d calls failed", failed, len(invocations))
	}
	return nil
}

// parseArgs decodes a JSON array keeping numbers exact
func parseArgs(raw string) ([]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var args []interface{}
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	return args, nil
}

func printFailure(out io.Writer, label string, err error) {
	var remote *exception.Error
	if errors.As(err, &remote) && len(remote.Trace) > 0 {
		fmt.Fprintf(out, "%s failed:\n%s\n", label, exception.Format(&wire.Failure{
			Type:    remote.KindName(),
			Message: remote.Message,
			Trace:   remote.Trace,
		}))
		return
	}
	fmt.Fprintf(out, "%s failed: %v\n", label, err)
}
