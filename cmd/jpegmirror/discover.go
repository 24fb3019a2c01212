package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/muurk/jpegmirror/internal/discovery"
	"github.com/muurk/jpegmirror/internal/ui"
)

// Discover command flags
var (
	discoverTimeout time.Duration
	discoverJSON    bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find jpegmirror servers on the network",
	Long: `Browse mDNS for jpegmirror servers started with --mdns and list them
with their address, version and request size limit.`,
	Example: `  # Scan for 5 seconds (default)
  jpegmirror discover

  # Longer scan, JSON output for scripting
  jpegmirror discover --timeout 15s --json`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultScanTimeout, "Scan timeout")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "Print results as JSON")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if !discoverJSON {
		fmt.Printf("Scanning for jpegmirror servers (timeout: %s)...\n\n", discoverTimeout)
	}

	instances, err := discovery.Discover(ctx, discoverTimeout)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if discoverJSON {
		data, err := json.MarshalIndent(instances, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(instances) == 0 {
		res := ui.NewWarningResult("No servers answered on " + discovery.ServiceType)
		res.Troubleshooting = []string{
			"Start the server with 'jpegmirror serve --mdns'",
			"Multicast traffic must be allowed between the hosts",
			"Try increasing --timeout",
		}
		fmt.Println(res)
		return nil
	}

	items := make([]*ui.Result, 0, len(instances))
	for _, inst := range instances {
		res := ui.NewSuccessResult(inst.Name).
			AddDetail("Address", inst.Address()).
			AddDetail("Host", inst.Hostname).
			AddDetail("Version", inst.GetMetadata(discovery.TxtVersion))
		if limit := inst.MaxRequestSize(); limit > 0 {
			res.AddDetail("Limit", humanize.IBytes(uint64(limit)))
		}
		items = append(items, res)
	}
	fmt.Println(ui.RenderList(fmt.Sprintf("Found %d server(s)", len(instances)), items))
	fmt.Println()

	fmt.Println("Use 'jpegmirror send <file> --server <address>' to mirror an image")
	return nil
}
