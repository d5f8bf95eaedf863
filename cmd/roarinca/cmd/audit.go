package cmd

import "github.com/spf13/cobra"

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail verification tools",
	Long:  `Commands for verifying and inspecting exported audit trails.`,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
