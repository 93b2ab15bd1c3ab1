// Package latency measures round-trip times to nearby speedtest servers and
// turns them into a suggested firing stagger.
//
// The measurement is a proxy: the unlock endpoint itself cannot be probed
// without spending quota, so general network RTT is the best available signal
// for how much lead the workers need.
package latency

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	st "github.com/showwin/speedtest-go/speedtest"

	"miunlock/internal/race"
	logx "miunlock/pkg/logx"
)

// Config controls one probe run.
type Config struct {
	// ServerCount is how many of the nearest servers get pinged.
	ServerCount int
	// PingConcurrency caps concurrent ping tests.
	PingConcurrency int
	// Log receives per-server diagnostics. The zero value discards them.
	Log logx.Logger
}

// Sample is one server's measured round trip.
type Sample struct {
	Sponsor string
	Host    string
	RTT     time.Duration
}

// Stats summarizes the observed round trips.
type Stats struct {
	Min    time.Duration
	Median time.Duration
	Max    time.Duration
}

// Report is the outcome of one probe run, samples sorted fastest first.
type Report struct {
	ISP     string
	Samples []Sample
	Stats   Stats
	Offsets []time.Duration
}

// OffsetsLine renders the suggestion in config-file syntax.
func (r *Report) OffsetsLine() string {
	parts := make([]string, len(r.Offsets))
	for i, off := range r.Offsets {
		parts[i] = fmt.Sprintf("%d", off.Milliseconds())
	}
	return fmt.Sprintf("offsets_ms: [%s]", strings.Join(parts, ", "))
}

// Probe fetches the server list, pings the nearest candidates and derives a
// stagger suggestion from the result.
func Probe(ctx context.Context, cfg Config) (*Report, error) {
	if cfg.ServerCount <= 0 {
		cfg.ServerCount = 8
	}
	if cfg.PingConcurrency <= 0 {
		cfg.PingConcurrency = 4
	}

	stc := st.New()

	user, err := stc.FetchUserInfoContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}

	servers, err := stc.FetchServerListContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch server list: %w", err)
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("no servers available")
	}

	sort.Slice(servers, func(i, j int) bool { return servers[i].Distance < servers[j].Distance })
	if len(servers) > cfg.ServerCount {
		servers = servers[:cfg.ServerCount]
	}

	samples := pingServers(ctx, servers, cfg.PingConcurrency, cfg.Log)
	if len(samples) == 0 {
		return nil, fmt.Errorf("all ping tests failed")
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].RTT < samples[j].RTT })

	stats := computeStats(samples)
	return &Report{
		ISP:     user.Isp,
		Samples: samples,
		Stats:   stats,
		Offsets: SuggestOffsets(stats.Median),
	}, nil
}

func pingServers(ctx context.Context, servers []*st.Server, maxConcurrent int, log logx.Logger) []Sample {
	sem := make(chan struct{}, maxConcurrent)
	out := make(chan Sample, len(servers))
	var wg sync.WaitGroup

	for _, s := range servers {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			if err := s.PingTestContext(ctx, nil); err != nil {
				log.Debug("ping failed", logx.String("host", s.Host), logx.Err(err))
				return
			}
			if s.Latency <= 0 {
				log.Debug("ping reported no latency", logx.String("host", s.Host))
				return
			}
			out <- Sample{Sponsor: s.Sponsor, Host: s.Host, RTT: s.Latency}
		}()
	}

	wg.Wait()
	close(out)

	samples := make([]Sample, 0, len(servers))
	for sm := range out {
		samples = append(samples, sm)
	}
	return samples
}

// computeStats expects samples sorted by RTT.
func computeStats(samples []Sample) Stats {
	n := len(samples)
	if n == 0 {
		return Stats{}
	}
	med := samples[n/2].RTT
	if n%2 == 0 {
		med = (samples[n/2-1].RTT + samples[n/2].RTT) / 2
	}
	return Stats{Min: samples[0].RTT, Median: med, Max: samples[n-1].RTT}
}

// SuggestOffsets slides the proven stagger outward until its tightest lead
// covers the measured round trip with headroom. The spacing between workers
// is preserved, and nothing tighter than the defaults is ever suggested.
func SuggestOffsets(median time.Duration) []time.Duration {
	out := append([]time.Duration(nil), race.DefaultOffsets...)
	if median <= 0 || len(out) == 0 {
		return out
	}

	// 1.5x median: one round trip plus half again for scheduling slop.
	need := median + median/2
	tail := out[len(out)-1]
	if need <= tail {
		return out
	}

	shift := need - tail
	// Snap up to a 50ms grid so the printed config line stays readable.
	if rem := shift % (50 * time.Millisecond); rem != 0 {
		shift += 50*time.Millisecond - rem
	}
	for i := range out {
		out[i] += shift
	}
	return out
}
