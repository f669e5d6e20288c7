package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// ErrNoPushgateway is returned by Push when no gateway URL is configured.
var ErrNoPushgateway = errors.New("no pushgateway url configured")

// Push sends every collector to the Pushgateway at url under job, replacing
// the previous push for the same grouping.
func (m *Metrics) Push(ctx context.Context, url, job string, grouping map[string]string) error {
	if m == nil {
		return nil
	}
	if url == "" {
		return ErrNoPushgateway
	}
	if job == "" {
		job = "schemadoc"
	}

	p := push.New(url, job).Gatherer(m.registry)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
