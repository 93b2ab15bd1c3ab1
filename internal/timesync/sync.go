// Package timesync anchors the race clock from NTP.
//
// The local clock of the machine running the race is not trusted: a second of
// drift is the difference between firing inside and outside the window. One
// successful query against an ordered server list is enough; the resulting
// timestamp seeds clock.NewSynced and the network is never asked again.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beevik/ntp"

	logx "miunlock/pkg/logx"
)

// ErrNoSources is returned when the server list is empty.
var ErrNoSources = errors.New("no time sources configured")

// DefaultServers is the production fallback chain, fastest-for-Asia first.
var DefaultServers = []string{
	"time.apple.com",
	"time.google.com",
	"ntp.aliyun.com",
	"pool.ntp.org",
	"ntp0.ntp-servers.net",
	"ntp1.ntp-servers.net",
}

// Result carries the first successful synchronization.
type Result struct {
	Time   time.Time // transmit timestamp, converted to the target timezone
	Server string
}

type Config struct {
	Servers []string
	Timeout time.Duration
}

type Syncer struct {
	cfg Config
	loc *time.Location
	log logx.Logger

	// query is swapped out in tests.
	query func(ctx context.Context, server string, timeout time.Duration) (time.Time, error)
}

func New(cfg Config, loc *time.Location, log logx.Logger) *Syncer {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Syncer{cfg: cfg, loc: loc, log: log, query: ntpQuery}
}

// Sync tries each server in order and returns the first answer. The last
// error is kept so a total failure names a concrete cause.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	if len(s.cfg.Servers) == 0 {
		return Result{}, ErrNoSources
	}
	var lastErr error
	for _, server := range s.cfg.Servers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		start := time.Now()
		ts, err := s.query(ctx, server, s.cfg.Timeout)
		if err != nil {
			s.log.Debug("time source failed", logx.String("server", server), logx.Err(err))
			lastErr = fmt.Errorf("%s: %w", server, err)
			continue
		}
		s.log.Info("time synchronized",
			logx.String("server", server),
			logx.Duration("query_time", time.Since(start)),
			logx.Time("synced", ts.In(s.loc)))
		return Result{Time: ts.In(s.loc), Server: server}, nil
	}
	return Result{}, lastErr
}

func ntpQuery(_ context.Context, server string, timeout time.Duration) (time.Time, error) {
	// beevik/ntp has no context plumbing; the per-query timeout bounds the call.
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return time.Time{}, err
	}
	if err := resp.Validate(); err != nil {
		return time.Time{}, err
	}
	return resp.Time, nil
}
