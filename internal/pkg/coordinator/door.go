package coordinator

import (
	"context"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

// OpenDoor asks the vendor to open the door of one intercom device.  It
// never fails loudly: any problem is logged and reported as false.  It may
// run alongside a refresh cycle.
func (c *Coordinator) OpenDoor(ctx context.Context, deviceID ufanetapi.Identifier) (ok bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctxLogger := logging.Logger(ctx).WithField("domofon_id", deviceID)

	defer func() {
		if r := recover(); r != nil {
			ctxLogger.Errorf("caught panic opening door: %v", r)
			ok = false
		}
		c.metrics.doorOpens.WithLabelValues(result(ok)).Inc()
	}()

	headers, err := c.session.Headers(ctx)
	if err != nil {
		ctxLogger.WithError(err).Error("cannot open door without a session")
		return false
	}

	if err := c.api.OpenDoor(ctx, headers, deviceID); err != nil {
		if ufanetapi.IsUnauthorized(err) {
			c.session.Invalidate(headers)
		}
		ctxLogger.WithError(err).Error("failed to open door")
		return false
	}

	ctxLogger.Info("door opened")
	return true
}
