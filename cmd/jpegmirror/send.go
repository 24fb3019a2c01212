package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/muurk/jpegmirror/internal/client"
	"github.com/muurk/jpegmirror/internal/discovery"
	"github.com/muurk/jpegmirror/internal/server"
	"github.com/muurk/jpegmirror/internal/ui"
)

// Send command flags
var (
	sendServer   string
	sendOutput   string
	sendTimeout  time.Duration
	sendDiscover bool
)

var sendCmd = &cobra.Command{
	Use:   "send <file>",
	Short: "Send an image to a running server",
	Long: `Post a JPEG file to a running jpegmirror server and save the mirrored result.

The server address defaults to the local machine. With --discover the first
server found over mDNS is used instead. Error responses are printed with
their status code and the command exits non-zero.`,
	Example: `  # Mirror photo.jpg using a local server, writes photo-mirrored.jpg
  jpegmirror send photo.jpg

  # Explicit server and output path
  jpegmirror send photo.jpg --server 192.168.1.20:17070 -o flipped.jpg

  # Write to stdout
  jpegmirror send photo.jpg -o - > flipped.jpg

  # Find a server on the LAN first
  jpegmirror send photo.jpg --discover`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendServer, "server", "s", net.JoinHostPort("127.0.0.1", strconv.Itoa(server.DefaultPort)), "Server address (host:port)")
	sendCmd.Flags().StringVarP(&sendOutput, "output", "o", "", "Output file, '-' for stdout (default: <input>-mirrored.jpg)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", client.DefaultTimeout, "Request timeout")
	sendCmd.Flags().BoolVar(&sendDiscover, "discover", false, "Locate a server over mDNS")
}

func runSend(cmd *cobra.Command, args []string) error {
	input := args[0]
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	addr := sendServer
	if sendDiscover {
		inst, err := firstInstance(ctx)
		if err != nil {
			return err
		}
		addr = inst.Address()
	}

	c := client.New(addr, client.WithTimeout(sendTimeout))
	res, err := c.Mirror(ctx, data)
	if err != nil {
		printResult(sendFailure(input, addr, err))
		return err
	}

	output := outputPath(input, sendOutput)
	if output == "-" {
		_, err = os.Stdout.Write(res.Body)
		return err
	}
	if err := os.WriteFile(output, res.Body, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	printResult(ui.NewSuccessResult("Image mirrored").
		AddDetail("Server", addr).
		AddDetail("Input", fmt.Sprintf("%s (%s)", input, humanize.IBytes(uint64(len(data))))).
		AddDetail("Output", fmt.Sprintf("%s (%s)", output, humanize.IBytes(uint64(len(res.Body))))).
		AddDetail("Took", res.Duration.Round(time.Millisecond).String()))
	return nil
}

// sendFailure explains a failed exchange, with tips matched to the status.
func sendFailure(input, addr string, err error) *ui.Result {
	var statusErr *client.StatusError
	if !errors.As(err, &statusErr) {
		return ui.NewFailureResult("Could not reach "+addr, err,
			"Check that 'jpegmirror serve' is running",
			"Use --server or --discover to pick another server")
	}

	res := ui.NewFailureResult(fmt.Sprintf("Server rejected %s", input), err)
	switch statusErr.StatusCode {
	case http.StatusRequestEntityTooLarge:
		res.Troubleshooting = []string{"Shrink the image or raise the server's max_request_size"}
	case http.StatusBadRequest:
		res.Troubleshooting = []string{"The file must be a baseline or progressive JPEG"}
	case http.StatusServiceUnavailable:
		res.Troubleshooting = []string{"The server's work queue is full, retry shortly"}
	}
	return res
}

// printResult writes a result box to stderr, or a single plain line when
// stderr is not a terminal.
func printResult(res *ui.Result) {
	if ui.IsTerminal(os.Stderr) {
		fmt.Fprintln(os.Stderr, res)
		return
	}
	line := res.Title
	for _, d := range res.Details {
		line += fmt.Sprintf(" %s=%s", strings.ToLower(d.Key), d.Value)
	}
	if res.Error != nil {
		line += ": " + res.Error.Error()
	}
	fmt.Fprintln(os.Stderr, line)
}

// outputPath picks the destination for a mirrored copy of input.
func outputPath(input, output string) string {
	if output != "" {
		return output
	}
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	if ext == "" {
		ext = ".jpg"
	}
	return base + "-mirrored" + ext
}

func firstInstance(ctx context.Context) (*discovery.Instance, error) {
	instances, err := discovery.Discover(ctx, discovery.DefaultScanTimeout)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	if len(instances) == 0 {
		return nil, errors.New("no jpegmirror servers found on the network")
	}
	return instances[0], nil
}
