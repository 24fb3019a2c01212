// Jpegmirror is a single-endpoint HTTP server that mirrors JPEG images.
//
// Every connection carries exactly one POST request whose body is a JPEG
// image. The server flips it, writes the result back and closes the
// connection. Processing runs on a fixed worker pool so that slow decodes
// never stall the accept loop.
//
// Usage:
//
//	jpegmirror serve [flags]
//	jpegmirror send <file> [flags]
//	jpegmirror discover [flags]
//	jpegmirror config init [flags]
//
// See 'jpegmirror --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/jpegmirror/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "jpegmirror",
	Short: "JPEG mirroring server",
	Long: `A single-endpoint HTTP server that mirrors JPEG images.

Each connection carries one POST request with a JPEG body. The server
decodes the image, flips it and answers with the re-encoded result, then
closes the connection. Oversized bodies are rejected with 413, malformed
images with 400, and connections that stay silent past the timeout are
closed without a response.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Printf("jpegmirror %s (commit: %s)\n", info.Version, info.Commit)
		fmt.Printf("  %s %s\n", info.GoVersion, info.Platform)
	},
}
