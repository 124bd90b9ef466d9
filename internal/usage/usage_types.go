package usage

// UsageData is the root structure persisted to .deskmate/usage.json.
type UsageData struct {
	Version   string          `json:"version"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// AggregatedStats holds counters broken down by operation and by day.
type AggregatedStats struct {
	Total       OpCounts            `json:"total"`
	ByOperation map[string]OpCounts `json:"by_operation"` // login, upload, chat, stream
	ByDay       map[string]OpCounts `json:"by_day"`       // 2026-08-31
}

// OpCounts holds request/failure sums plus transfer volume.
type OpCounts struct {
	Requests      int64 `json:"requests"`
	Failures      int64 `json:"failures"`
	Refreshes     int64 `json:"refreshes,omitempty"`
	BytesUploaded int64 `json:"bytes_uploaded,omitempty"`
	Messages      int64 `json:"messages,omitempty"`
}

func (c *OpCounts) add(e Event) {
	c.Requests++
	if e.Failed {
		c.Failures++
	}
	c.Refreshes += e.Refreshes
	c.BytesUploaded += e.BytesUploaded
	c.Messages += e.Messages
}

// Event is one recorded client operation.
type Event struct {
	Operation     string
	Failed        bool
	Refreshes     int64
	BytesUploaded int64
	Messages      int64
}
