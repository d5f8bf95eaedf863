package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roarinpenguin/roarinca/ca"
)

var inspectJSONOutput bool

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Print metadata of a PEM certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("cannot read file: %w", err)
		}

		meta, err := ca.ParseCertificatePEM(string(data))
		if err != nil {
			return err
		}

		if inspectJSONOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(meta)
		}

		fmt.Printf("Common name:   %s\n", meta.CommonName)
		fmt.Printf("Subject:       %s\n", meta.Subject)
		fmt.Printf("Issuer:        %s\n", meta.Issuer)
		fmt.Printf("Serial:        %s\n", meta.SerialNumber)
		fmt.Printf("Not before:    %s\n", meta.NotBefore.Format(time.RFC3339))
		fmt.Printf("Not after:     %s\n", meta.NotAfter.Format(time.RFC3339))
		if remaining := time.Until(meta.NotAfter); remaining > 0 {
			fmt.Printf("Expires in:    %d days\n", int(remaining.Hours()/24))
		} else {
			fmt.Printf("Expired:       %d days ago\n", int(-remaining.Hours()/24))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolVar(&inspectJSONOutput, "json", false, "Output as JSON")
}
