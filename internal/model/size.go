package model

// SizeRequest asks the size probe to fetch a URL.
type SizeRequest struct {
	URL string `json:"url"`
}

// SizeResult reports the body size of a fetched URL and how long it took.
type SizeResult struct {
	URL                   string  `json:"url"`
	Size                  int     `json:"size"`
	TotalTime             float64 `json:"totaltime"`
	RequestTimePercentage float64 `json:"requesttime_percentage"`
	Timings               Timings `json:"timings"`
}

// Timings is the connection phase breakdown of a probe request, in milliseconds.
type Timings struct {
	DNS     float64 `json:"dns_ms"`
	Connect float64 `json:"connect_ms"`
	TLS     float64 `json:"tls_ms"`
	TTFB    float64 `json:"ttfb_ms"`
}
