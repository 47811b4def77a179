package coordinator

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/korovkin/limiter"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/reconcile"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

// number of resource collections fetched per cycle
const fetchers = 3

// Refresh runs one complete cycle.  Only a failure to obtain a token fails
// the cycle; an unreachable resource collection just comes back empty.
// Concurrent callers are serialized.  A started cycle is not cancelled by
// ctx; the per-call API timeout is its only bound.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithCycleID(context.WithoutCancel(ctx), uuid.New().String())
	ctxLogger := logging.Logger(ctx)

	start := time.Now()
	defer func() {
		c.metrics.duration.Observe(time.Since(start).Seconds())
	}()

	c.mu.Lock()
	c.lastAttempt = start
	c.mu.Unlock()

	c.setState(StateAuthenticating)
	headers, err := c.session.Headers(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	c.setState(StateFetching)

	var (
		devices   []ufanetapi.IntercomDevice
		cameras   []ufanetapi.Camera
		contracts []ufanetapi.Contract
	)

	// each job writes its own result slot
	limit := limiter.NewConcurrencyLimiter(fetchers)
	limit.ExecuteWithTicket(func(int) { devices = c.fetchDevices(ctx, headers) })
	limit.ExecuteWithTicket(func(int) { cameras = c.fetchCameras(ctx, headers) })
	limit.ExecuteWithTicket(func(int) { contracts = c.fetchContracts(ctx, headers) })
	limit.Wait()

	c.setState(StateReconciling)
	devices = dedupeDevices(ctx, devices)
	pairs, standalone := reconcile.Reconcile(devices, cameras)

	snap := &Snapshot{
		Devices:       devices,
		Cameras:       cameras,
		DeviceCameras: pairs,
		Standalone:    standalone,
		Contracts:     contracts,
		RefreshedAt:   time.Now(),
	}

	c.publish(snap)

	ctxLogger.Infof("refresh: %d domofons, %d cameras (%d standalone), %d contracts in %s",
		len(devices), len(cameras), len(standalone), len(contracts), time.Since(start))

	return nil
}

func (c *Coordinator) publish(snap *Snapshot) {
	c.mu.Lock()
	c.snapshot = snap
	c.state = StatePublished
	c.lastErr = nil
	c.mu.Unlock()

	c.metrics.refreshes.WithLabelValues(result(true)).Inc()
	c.metrics.lastSuccess.Set(float64(snap.RefreshedAt.Unix()))

	c.notify(Update{Snapshot: snap})
}

func (c *Coordinator) fail(ctx context.Context, err error) error {
	failure := &UpdateFailedError{Err: err}

	c.mu.Lock()
	c.state = StateFailed
	c.lastErr = failure
	prev := c.snapshot
	c.mu.Unlock()

	c.metrics.refreshes.WithLabelValues(result(false)).Inc()

	ctxLogger := logging.Logger(ctx).WithError(err)
	if IsAuthFailure(err) {
		ctxLogger.Error("refresh: authentication failed")
	} else {
		ctxLogger.Error("refresh: cannot obtain a session")
	}

	c.notify(Update{Snapshot: prev, Err: failure})
	return failure
}

// fetchFailed logs a contained fetch failure.  A rejected token is
// forgotten so that the next cycle logs in from scratch.
func (c *Coordinator) fetchFailed(ctx context.Context, headers http.Header, resource string, err error) {
	c.metrics.fetchFailures.WithLabelValues(resource).Inc()
	logging.Logger(ctx).WithError(err).Errorf("failed to fetch %s", resource)

	if ufanetapi.IsUnauthorized(err) {
		logging.Logger(ctx).Warn("access token rejected, logging in again on the next cycle")
		c.session.Invalidate(headers)
	}
}

func (c *Coordinator) fetchDevices(ctx context.Context, headers http.Header) []ufanetapi.IntercomDevice {
	devices, err := c.api.Devices(ctx, headers)
	if err != nil {
		c.fetchFailed(ctx, headers, "devices", err)
		return []ufanetapi.IntercomDevice{}
	}

	if devices == nil {
		devices = []ufanetapi.IntercomDevice{}
	}
	logging.Logger(ctx).Debugf("fetched %d domofons", len(devices))
	return devices
}

func (c *Coordinator) fetchCameras(ctx context.Context, headers http.Header) []ufanetapi.Camera {
	raw, err := c.api.Cameras(ctx, headers)
	if err != nil {
		c.fetchFailed(ctx, headers, "cameras", err)
		return []ufanetapi.Camera{}
	}

	cameras := make([]ufanetapi.Camera, 0, len(raw))
	for _, cam := range raw {
		cameras = append(cameras, cam.WithStreamSource())
	}

	logging.Logger(ctx).Debugf("fetched %d cameras", len(cameras))
	return cameras
}

func (c *Coordinator) fetchContracts(ctx context.Context, headers http.Header) []ufanetapi.Contract {
	contracts, err := c.api.Contracts(ctx, headers)
	if err != nil {
		c.fetchFailed(ctx, headers, "contracts", err)
		return []ufanetapi.Contract{}
	}

	if contracts == nil {
		contracts = []ufanetapi.Contract{}
	}
	logging.Logger(ctx).Debugf("fetched %d contracts", len(contracts))
	return contracts
}

// dedupeDevices drops repeated device ids, keeping the first
func dedupeDevices(ctx context.Context, devices []ufanetapi.IntercomDevice) []ufanetapi.IntercomDevice {
	seen := make(map[ufanetapi.Identifier]bool, len(devices))
	out := make([]ufanetapi.IntercomDevice, 0, len(devices))

	for _, d := range devices {
		if seen[d.ID] {
			logging.Logger(ctx).Warnf("ignoring duplicate domofon id %s", d.ID)
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}

	return out
}
