// Package config loads jpegmirror configuration.
//
// Configuration comes from a YAML file, JPEGMIRROR_* environment variables
// and command-line flags (applied by the CLI after Load). The file follows
// OS-specific conventions for its location:
//   - Linux: $XDG_CONFIG_HOME/jpegmirror/config.yaml or $HOME/.config/jpegmirror/config.yaml
//   - macOS: $HOME/.config/jpegmirror/config.yaml
//   - Windows: %LOCALAPPDATA%\jpegmirror\config.yaml
//
// # Example File
//
//	server:
//	  host: 0.0.0.0
//	  port: 17070
//	  max_request_size: 32 MiB
//	  max_header_size: 1.0 MiB
//	  timeout: 15s
//	  mime_type: image/jpeg
//	workers:
//	  size: 0        # one per CPU
//	  queue_size: 0  # unbounded
//	processing:
//	  quality: 90
//	  direction: horizontal
//	logging:
//	  level: info
//	  format: console
//	metrics:
//	  enabled: false
//	  port: 9090
//	discovery:
//	  enabled: false
//	  instance: jpegmirror
//
// Sizes accept plain integers or human readable strings ("512KB", "32MiB").
//
// # Usage Example
//
//	cfg, err := config.Load("") // default location, missing file is fine
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.New(cfg.Server.ServerOptions(), h)
package config
