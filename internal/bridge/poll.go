package bridge

import (
	"context"
	"time"
)

// runPoll is the polling loop. Each pass renews the hub session when due,
// sweeps status (and discovery) when due and then waits one tick for a
// command.
func (s *session) runPoll(ctx context.Context) error {
	tick := time.NewTimer(s.cfg.CommandPollTimeout)
	defer tick.Stop()
	defer s.syncCounters(nil)

	for {
		s.syncCounters(nil)
		if err := s.renewIfDue(ctx); err != nil {
			return err
		}

		if s.now().Sub(s.lastStatus) >= s.cfg.StatusInterval {
			if s.cfg.Discovery && s.now().Sub(s.lastDiscovery) >= s.cfg.DiscoveryInterval {
				if err := s.publishDiscovery(); err != nil {
					return err
				}
				s.lastDiscovery = s.now()
			}
			if err := s.status.PublishAll(ctx); err != nil {
				return err
			}
			s.lastStatus = s.now()
		}

		tick.Reset(s.cfg.CommandPollTimeout)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.broker.Lost():
			return s.brokerLost()
		case msg := <-s.broker.Messages():
			if err := s.dispatch(ctx, msg); err != nil {
				return err
			}
		case <-tick.C:
		}
	}
}
