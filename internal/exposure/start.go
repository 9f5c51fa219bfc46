package exposure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Start binds every planned interface, external first. The first bind error
// is returned immediately.
//
// Servers that were already bound stay bound when a later bind fails; the
// caller owns them and should Close the plan.
func Start(ctx context.Context, ifaces NetworkInterfaces, logger *slog.Logger, metrics *Metrics) error {
	if logger == nil {
		logger = slog.Default()
	}
	if len(ifaces) == 0 {
		return errors.New("no interfaces to start")
	}

	for _, name := range ifaces.Ordered() {
		plan := ifaces[name]
		encrypted := plan.Server.Encrypted()

		if err := plan.Server.Listen(plan.Address()); err != nil {
			metrics.RecordListenError(name)
			logger.ErrorContext(ctx, "Failed to start server",
				"interface", name,
				"address", plan.Address(),
				"error", err)
			return fmt.Errorf("failed to listen on %s interface %s: %w", name, plan.Address(), err)
		}

		metrics.SetListening(name, encrypted, true)

		scheme := "http"
		if encrypted {
			scheme = "https"
		}
		logger.InfoContext(ctx, "Server listening",
			"interface", name,
			"url", fmt.Sprintf("%s://%s", scheme, listenAddress(plan)))
	}

	return nil
}

// Close shuts every server down and joins the errors.
func Close(ctx context.Context, ifaces NetworkInterfaces, metrics *Metrics) error {
	var errs []error
	for _, name := range ifaces.Ordered() {
		plan := ifaces[name]
		if err := plan.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		metrics.SetListening(name, plan.Server.Encrypted(), false)
	}
	return errors.Join(errs...)
}

// listenAddress prefers the address the listener actually bound.
func listenAddress(plan InterfacePlan) string {
	if addr := plan.Server.Addr(); addr != nil {
		return addr.String()
	}
	return plan.Address()
}
