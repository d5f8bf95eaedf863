package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "roarinca",
	Short: "RoarinCA is a private certificate authority",
	Long: `A private certificate authority to issue and manage TLS and code signing
certificates for internal infrastructure.
Complete documentation is available at https://github.com/roarinpenguin/roarinca`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
}
