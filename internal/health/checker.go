package health

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ayuhito/globalping-probe/internal/metrics"
)

const (
	defaultChannelStale    = time.Minute
	certExpiryWarningAhead = time.Hour
)

const (
	categoryMeasurementPressure = "MEASUREMENT_PRESSURE"
	categoryChannelPending      = "CHANNEL_PENDING"
	categoryChannelStale        = "CHANNEL_STALE"
	categoryChannelError        = "CHANNEL_ERROR"
	categoryCertExpiring        = "CERT_EXPIRING"
	categoryCertExpired         = "CERT_EXPIRED"
)

const (
	severityInfo     = "info"
	severityWarning  = "warning"
	severityCritical = "critical"
)

// Checker evaluates readiness conditions for the agent: is the control
// channel connected and healthy, is the mTLS client certificate still
// valid, and is the agent not overloaded with in-flight measurements.
type Checker struct {
	metrics    *metrics.Store
	maxActive  int
	staleAfter time.Duration

	mu             sync.RWMutex
	lastChannelUp  time.Time
	channelErr     string
	lastChannelErr time.Time
	certExpiry     time.Time
}

// NewChecker constructs a readiness checker bound to the provided metrics store.
// maxActive is the number of concurrent measurements at or above which the agent
// reports pressure; zero disables the check.
func NewChecker(store *metrics.Store, maxActive int, staleAfter time.Duration) *Checker {
	if staleAfter <= 0 {
		staleAfter = defaultChannelStale
	}
	return &Checker{
		metrics:    store,
		maxActive:  maxActive,
		staleAfter: staleAfter,
	}
}

// ObserveChannelHeartbeat records the outcome of a control-channel connect
// attempt or keepalive pong.
func (c *Checker) ObserveChannelHeartbeat(ts time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.channelErr = err.Error()
		c.lastChannelErr = ts
		return
	}
	c.lastChannelUp = ts
	c.channelErr = ""
	c.lastChannelErr = time.Time{}
}

// SetCertExpiry records the expiry timestamp of the current client certificate.
func (c *Checker) SetCertExpiry(expiry time.Time) {
	c.mu.Lock()
	c.certExpiry = expiry
	c.mu.Unlock()
}

// Ready evaluates all readiness conditions and returns the overall status and reasons for failure.
func (c *Checker) Ready(now time.Time) (bool, []string) {
	reasons := make([]string, 0, 4)
	categories := make([]metrics.ReadinessCategory, 0, 4)
	appendCategory := func(name, severity string) {
		categories = append(categories, metrics.ReadinessCategory{
			Name:     name,
			Severity: severity,
		})
	}

	if c.metrics != nil && c.maxActive > 0 {
		snap := c.metrics.Snapshot()
		if snap.ActiveMeasurements >= int64(c.maxActive) {
			reasons = append(reasons, "active measurement capacity exceeded")
			appendCategory(categoryMeasurementPressure, severityWarning)
		}
	}

	c.mu.RLock()
	lastUp := c.lastChannelUp
	channelErr := c.channelErr
	lastErr := c.lastChannelErr
	certExpiry := c.certExpiry
	staleAfter := c.staleAfter
	c.mu.RUnlock()

	if lastUp.IsZero() {
		reasons = append(reasons, "control channel not yet connected")
		appendCategory(categoryChannelPending, severityInfo)
	} else if staleAfter > 0 && now.Sub(lastUp) > staleAfter {
		reasons = append(reasons, fmt.Sprintf("control channel heartbeat stale (%s)", now.Sub(lastUp).Round(time.Second)))
		appendCategory(categoryChannelStale, severityWarning)
	}

	if channelErr != "" {
		if staleAfter <= 0 || now.Sub(lastErr) <= staleAfter {
			reasons = append(reasons, fmt.Sprintf("control channel failing: %s", channelErr))
			appendCategory(categoryChannelError, severityCritical)
		}
	}

	if !certExpiry.IsZero() {
		if !certExpiry.After(now) {
			reasons = append(reasons, "client certificate expired")
			appendCategory(categoryCertExpired, severityCritical)
		} else if certExpiry.Sub(now) < certExpiryWarningAhead {
			reasons = append(reasons, "client certificate expiring soon")
			appendCategory(categoryCertExpiring, severityWarning)
		}
	}

	ready := len(reasons) == 0
	if c.metrics != nil {
		reasonText := strings.Join(reasons, "; ")
		if ready {
			c.metrics.ObserveReadiness(true, "", nil)
		} else {
			c.metrics.ObserveReadiness(false, reasonText, categories)
		}
	}
	if !ready {
		return false, reasons
	}
	return true, nil
}
