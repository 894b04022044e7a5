package relayService

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tanmay-xvx/controller-relay/internals/logging"
)

// EnsureConnected returns nil once the relay is consuming from the broker.
//
// The connect attempt is shared by all concurrent callers of the same epoch and
// is not bound to any caller's ctx: a caller that gives up only stops waiting.
// ctx cancellation returns ctx.Err(). An attempt overtaken by a teardown is
// never joined by callers that arrive after it.
func (s *Service) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	state, epoch := s.state, s.epoch
	s.mu.Unlock()

	switch state {
	case Connected:
		return nil
	case ShuttingDown:
		return ErrShuttingDown
	}

	key := "connect-" + strconv.FormatUint(epoch, 10)
	result := s.connectGroup.DoChan(key, func() (interface{}, error) {
		return nil, s.connect()
	})

	select {
	case res := <-result:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connect runs one connect attempt. Resources opened by an attempt that was
// overtaken by a teardown are released instead of published.
func (s *Service) connect() error {
	s.mu.Lock()
	switch s.state {
	case Connected:
		s.mu.Unlock()
		return nil
	case ShuttingDown:
		s.mu.Unlock()
		return ErrShuttingDown
	}
	s.state = Connecting
	epoch := s.epoch
	s.mu.Unlock()

	s.logger.Info("connecting to broker", "exchange", s.cfg.Exchange, "queue", s.cfg.Queue)

	sess, err := s.open()

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		if sess != nil {
			s.release(sess)
		}
		s.metrics.IncConnect(false)
		return ErrShuttingDown
	}
	if err != nil {
		s.state = Disconnected
		s.mu.Unlock()
		s.metrics.IncConnect(false)
		s.logger.Error("broker connect failed", logging.Error(err))
		return err
	}

	s.conn = sess.conn
	s.ch = sess.ch
	s.consumerTag = sess.consumerTag
	s.state = Connected
	s.mu.Unlock()

	s.metrics.IncConnect(true)
	s.watch(epoch, sess)
	go s.consume(sess.deliveries)

	s.logger.Info("broker connected", "consumer_tag", sess.consumerTag, "routing_keys", s.cfg.RoutingKeys)
	return nil
}

// Teardown closes subscribers and broker resources. See RelayService.
func (s *Service) Teardown(forceExit bool) {
	s.mu.Lock()
	if s.state == ShuttingDown {
		if forceExit && !s.exitRequested {
			s.exitRequested = true
			s.startWatchdogLocked()
			s.logger.Info("exit requested during teardown")
		}
		s.mu.Unlock()
		return
	}

	s.state = ShuttingDown
	s.epoch++
	if forceExit {
		s.exitRequested = true
		s.startWatchdogLocked()
	}
	conn, ch, tag := s.conn, s.ch, s.consumerTag
	s.conn, s.ch, s.consumerTag = nil, nil, ""
	s.mu.Unlock()

	s.logger.Info("teardown started", "force_exit", forceExit)

	s.fanoutMu.Lock()
	closed := s.registry.CloseAll()
	s.fanoutMu.Unlock()

	if ch != nil {
		s.step("cancel consumer", s.cfg.CancelTimeout, func() error {
			return ch.Cancel(tag, false)
		})
		s.step("close channel", s.cfg.ChannelCloseTimeout, ch.Close)
	}
	if conn != nil {
		s.step("close connection", s.cfg.ConnectionCloseTimeout, conn.Close)
	}

	s.metrics.IncTeardowns()
	s.logger.Info("teardown complete", "subscribers_closed", closed)

	s.mu.Lock()
	exit := s.exitRequested
	if exit {
		s.watchdog.Stop()
	} else {
		s.state = Disconnected
	}
	s.mu.Unlock()

	if exit {
		s.exit(0)
	}
}

// HandleFault tears the relay down and exits after an unrecoverable error.
func (s *Service) HandleFault(err error) {
	s.logger.Error("unrecoverable fault", logging.Error(err))
	s.Teardown(true)
}

// startWatchdogLocked arms a timer that exits with status 1 if teardown has
// not finished within the force-exit timeout. s.mu must be held.
func (s *Service) startWatchdogLocked() {
	s.watchdog = time.AfterFunc(s.cfg.ForceExitTimeout, func() {
		s.logger.Error("teardown did not finish in time, forcing exit", "timeout", s.cfg.ForceExitTimeout)
		s.exit(1)
	})
}

// step runs fn and waits at most timeout for it. Errors, panics and timeouts
// are logged and otherwise ignored; a timed out fn keeps running in the background.
func (s *Service) step(name string, timeout time.Duration, fn func() error) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn()
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("teardown step failed", "step", name, logging.Error(err))
		}
	case <-time.After(timeout):
		s.logger.Warn("teardown step timed out", "step", name, "timeout", timeout)
	}
}
