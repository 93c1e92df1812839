package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/census-catalog-builder/internal/output"
)

// newVerifyCmd creates the 'verify' subcommand.
func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a catalog directory against its manifest",
		Args:  cobra.NoArgs,
		RunE:  runVerifyCommand,
	}
	cmd.Flags().String("out", "census_catalog_out", "output directory to verify")
	return cmd
}

func runVerifyCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()

	manifest, mismatches, err := output.Verify(os.DirFS(cfg.Output.Dir), cfg.Output.ManifestName, appInstance.Hasher())
	if err != nil {
		return fmt.Errorf("verify %s: %w", cfg.Output.Dir, err)
	}
	out := cmd.OutOrStdout()
	for _, m := range mismatches {
		fmt.Fprintf(out, "MISMATCH %s: %s\n", m.Name, m.Reason)
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d of %d artifacts do not match %s", len(mismatches), len(manifest.Files), cfg.Output.ManifestName)
	}
	fmt.Fprintf(out, "OK run %s: %d artifacts match %s\n", manifest.RunID, len(manifest.Files), cfg.Output.ManifestName)
	return nil
}
