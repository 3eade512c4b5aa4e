package loadgen

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"net"
	"slices"
	"sync"
	"text/tabwriter"
	"time"
)

// Error kinds counted in Summary.ErrorKinds.
const (
	ErrKindTimeout    = "timeout"
	ErrKindConnection = "connection"
	ErrKindOther      = "other"
)

// Latency holds response time statistics over completed requests.
type Latency struct {
	Min  time.Duration
	Mean time.Duration
	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
	Max  time.Duration
}

// Summary is the result of a load run.
type Summary struct {
	RunID    string
	Scenario string
	Elapsed  time.Duration
	// Requests counts requests that produced a response.
	Requests   int
	Errors     int
	Statuses   map[int]int
	ErrorKinds map[string]int
	Latency    Latency
}

// Throughput returns completed requests per second.
func (s *Summary) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Requests) / s.Elapsed.Seconds()
}

// Write prints a human-readable report.
func (s *Summary) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "run\t%s\n", s.RunID)
	fmt.Fprintf(tw, "scenario\t%s\n", s.Scenario)
	fmt.Fprintf(tw, "elapsed\t%s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(tw, "requests\t%d\n", s.Requests)
	fmt.Fprintf(tw, "errors\t%d\n", s.Errors)
	fmt.Fprintf(tw, "throughput\t%.2f req/s\n", s.Throughput())

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "status\tcount")
	for _, code := range sortedKeys(s.Statuses) {
		fmt.Fprintf(tw, "%d\t%d\n", code, s.Statuses[code])
	}
	for _, kind := range sortedKeys(s.ErrorKinds) {
		fmt.Fprintf(tw, "error:%s\t%d\n", kind, s.ErrorKinds[kind])
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "min\tmean\tp50\tp95\tp99\tmax")
	l := s.Latency
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
		ms(l.Min), ms(l.Mean), ms(l.P50), ms(l.P95), ms(l.P99), ms(l.Max))

	return tw.Flush()
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
}

func sortedKeys[K int | string](m map[K]int) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

type recorder struct {
	mu         sync.Mutex
	latencies  []time.Duration
	statuses   map[int]int
	errorKinds map[string]int
	errors     int
}

func newRecorder() *recorder {
	return &recorder{
		statuses:   make(map[int]int),
		errorKinds: make(map[string]int),
	}
}

func (r *recorder) success(status int, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[status]++
	r.latencies = append(r.latencies, latency)
}

func (r *recorder) failure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
	r.errorKinds[errorKind(err)]++
}

func (r *recorder) summary(elapsed time.Duration) *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	return &Summary{
		Elapsed:    elapsed,
		Requests:   len(r.latencies),
		Errors:     r.errors,
		Statuses:   maps.Clone(r.statuses),
		ErrorKinds: maps.Clone(r.errorKinds),
		Latency:    latencyStats(r.latencies),
	}
}

func latencyStats(samples []time.Duration) Latency {
	if len(samples) == 0 {
		return Latency{}
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return Latency{
		Min:  sorted[0],
		Mean: total / time.Duration(len(sorted)),
		P50:  percentile(sorted, 50),
		P95:  percentile(sorted, 95),
		P99:  percentile(sorted, 99),
		Max:  sorted[len(sorted)-1],
	}
}

// percentile returns the nearest-rank percentile of an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = max(1, min(rank, len(sorted)))
	return sorted[rank-1]
}

func errorKind(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrKindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrKindConnection
	}
	return ErrKindOther
}
