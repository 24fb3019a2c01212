// Package ui renders the jpegmirror CLI's human-facing output.
//
// Commands print a single styled box when they finish: green for success,
// red for failure (with troubleshooting tips), orange for warnings. Boxes are
// built with Lipgloss and sized to the terminal; when stdout is not a
// terminal Lipgloss drops the colours and the layout stays readable in logs.
//
// Example:
//
//	res := ui.NewSuccessResult("Image mirrored").
//	    AddDetail("Output", "photo-mirrored.jpg").
//	    AddDetail("Size", "1.2 MiB")
//	fmt.Fprintln(os.Stderr, res)
//
// # Logging Integration
//
// Server logs are controlled by the serve command's --log-level flag or the
// JPEGMIRROR_LOG_LEVEL environment variable. Client commands keep zap silent
// so that these boxes are the only output.
package ui
