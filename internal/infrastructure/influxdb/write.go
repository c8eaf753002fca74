package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordDecision writes one point per supervisor decision.
//
// Tags are low cardinality (status, source); the room count and latency go
// into fields. The write is non-blocking; data is batched and sent
// asynchronously.
//
// Source identifies where the verdict came from: "rules" (fast path),
// "reasoner", "heuristic", or "fallback".
func (c *Client) RecordDecision(status, source string, rooms int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"approval_decision",
		map[string]string{
			"status": status,
			"source": source,
		},
		map[string]interface{}{
			"rooms":       rooms,
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordResolution writes one point per resolved request on the
// coordinator side.
//
// Source distinguishes a supervisor decision ("supervisor") from a
// synthesized timeout verdict ("timeout"); executed records whether device
// commands were actually published.
func (c *Client) RecordResolution(status, source string, rooms int, executed bool, waited time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"approval_resolution",
		map[string]string{
			"status": status,
			"source": source,
		},
		map[string]interface{}{
			"rooms":    rooms,
			"executed": executed,
			"wait_ms":  waited.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
