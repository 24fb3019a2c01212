// Package discovery provides mDNS advertisement and discovery of jpegmirror servers.
//
// A server started with discovery enabled registers itself as a
// "_jpegmirror._tcp" service. The `jpegmirror discover` command browses for
// that service type and lists what answers.
//
// # TXT Records
//
//	path=/
//	version=<server version>
//	mime=<Content-Type of successful responses>
//	max_request_size=<bytes>
//
// # Usage Example
//
//	// advertise until ctx is cancelled
//	go discovery.Advertise(ctx, discovery.Advertisement{
//	    Instance: "jpegmirror",
//	    Port:     17070,
//	}, logger)
//
//	// discover with a 3-second timeout
//	instances, err := discovery.Discover(ctx, 3*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, inst := range instances {
//	    fmt.Println(inst)
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Servers must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
