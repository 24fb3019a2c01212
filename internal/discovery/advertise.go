package discovery

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

// Advertisement describes what a running server announces
type Advertisement struct {
	Instance       string
	Port           int
	Version        string
	MimeType       string
	MaxRequestSize int64
}

// TXT renders the advertisement's TXT records.
func (a Advertisement) TXT() []string {
	txt := []string{"path=/"}
	if a.Version != "" {
		txt = append(txt, TxtVersion+"="+a.Version)
	}
	if a.MimeType != "" {
		txt = append(txt, TxtMimeType+"="+a.MimeType)
	}
	if a.MaxRequestSize > 0 {
		txt = append(txt, TxtMaxRequestSize+"="+strconv.FormatInt(a.MaxRequestSize, 10))
	}
	return txt
}

// Advertise registers the service over mDNS and keeps it registered until
// ctx is cancelled, then withdraws it. It returns nil on cancellation.
func Advertise(ctx context.Context, ad Advertisement, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ad.Instance == "" {
		return errors.New("mDNS instance name is required")
	}
	if ad.Port <= 0 || ad.Port > 65535 {
		return fmt.Errorf("invalid port %d for mDNS advertisement", ad.Port)
	}

	srv, err := zeroconf.Register(ad.Instance, ServiceType, ServiceDomain, ad.Port, ad.TXT(), nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logger.Info("Advertising over mDNS",
		zap.String("instance", ad.Instance),
		zap.String("service", ServiceType),
		zap.Int("port", ad.Port),
	)

	<-ctx.Done()
	srv.Shutdown()
	logger.Info("mDNS advertisement withdrawn", zap.String("instance", ad.Instance))
	return nil
}
