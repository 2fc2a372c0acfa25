package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"batchrpc/internal/client"
	"batchrpc/internal/config"
	"batchrpc/internal/endpoint"
	"batchrpc/internal/exception"
)

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List configured operations and exception kinds",
	Args:  cobra.NoArgs,
	RunE:  runOps,
}

func init() {
	rootCmd.AddCommand(opsCmd)
}

func runOps(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	exceptions := exception.NewRegistry()
	for _, exc := range cfg.Exceptions {
		if _, err := exceptions.Define(exc.Name, exc.Parent); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OPERATION\tVERSION\tARGS\tENDPOINT\tTRANSPORT")
	for _, epCfg := range cfg.Endpoints {
		for _, op := range client.Operations(epCfg.Operations) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", op.Name, op.Version, arity(op), epCfg.Name, epCfg.Transport)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXCEPTION\tPARENT")
	for _, kind := range exceptions.Kinds() {
		parent := "-"
		if kind.Parent() != nil {
			parent = kind.Parent().Name()
		}
		fmt.Fprintf(w, "%s\t%s\n", kind.Name(), parent)
	}
	return w.Flush()
}

// arity renders the parameter list, e.g. (a, b) or 1..3
func arity(op endpoint.Operation) string {
	if len(op.ArgNames) == 0 {
		if op.MinArgs == op.MaxArgs {
			return fmt.Sprintf("%d", op.MinArgs)
		}
		return fmt.Sprintf("%d..%d", op.MinArgs, op.MaxArgs)
	}
	s := "("
	for i := 0; i < op.MaxArgs; i++ {
		if i > 0 {
			s += ", "
		}
		if i >= op.MinArgs {
			s += "[" + op.ArgName(i) + "]"
			continue
		}
		s += op.ArgName(i)
	}
	return s + ")"
}
