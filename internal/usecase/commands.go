package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BinPull/internal/domain/errs"
	"BinPull/internal/domain/models"
	"BinPull/pkg/logger"
)

// CommandKind names a control action. The same names are used on the HTTP
// surface and the command topic.
type CommandKind string

const (
	CmdStart    CommandKind = "start"
	CmdStop     CommandKind = "stop"
	CmdPause    CommandKind = "pause"
	CmdResume   CommandKind = "resume"
	CmdStake    CommandKind = "stake"
	CmdStrategy CommandKind = "strategy"
	CmdAccount  CommandKind = "account"
)

const resumeTimeout = 30 * time.Second

var ErrInvalidCommand = errors.New("invalid command")

type command struct {
	kind    CommandKind
	stake   float64
	variant models.Variant
	account models.AccountType
	reply   chan error
}

// send queues cmd for the session loop and waits for it to be applied.
func (s *Session) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case s.cmdCh <- cmd:
	case <-s.done:
		return ErrSessionNotRunning
	case <-ctx.Done():
		return errs.New(errs.ErrCancelled, "session."+string(cmd.kind), ctx.Err())
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-s.done:
		if cmd.kind == CmdStop {
			return nil
		}
		return ErrSessionNotRunning
	case <-ctx.Done():
		return errs.New(errs.ErrCancelled, "session."+string(cmd.kind), ctx.Err())
	}
}

func (s *Session) Stop(ctx context.Context) error { return s.send(ctx, command{kind: CmdStop}) }

func (s *Session) Pause(ctx context.Context) error { return s.send(ctx, command{kind: CmdPause}) }

func (s *Session) Resume(ctx context.Context) error { return s.send(ctx, command{kind: CmdResume}) }

func (s *Session) SetStake(ctx context.Context, stake float64) error {
	return s.send(ctx, command{kind: CmdStake, stake: stake})
}

func (s *Session) SetStrategy(ctx context.Context, v models.Variant) error {
	return s.send(ctx, command{kind: CmdStrategy, variant: v})
}

func (s *Session) SetAccount(ctx context.Context, a models.AccountType) error {
	return s.send(ctx, command{kind: CmdAccount, account: a})
}

// apply runs on the session loop, between ticks.
func (s *Session) apply(ctx context.Context, cmd command) error {
	s.log.Debug("session: command", logger.String("command", string(cmd.kind)))
	switch cmd.kind {
	case CmdStop:
		s.halt("stopped by user", nil)
		return nil

	case CmdPause:
		if p := s.phaseNow(); p != models.PhaseActive {
			return fmt.Errorf("%w: pause while %s", ErrInvalidCommand, p)
		}
		s.pausedByLink = false
		s.setPhase(models.PhasePaused, "paused by user")
		return nil

	case CmdResume:
		return s.resume(ctx)

	case CmdStake:
		if floor := s.cfg.Limits.MinStake; cmd.stake < floor {
			return fmt.Errorf("%w: stake %.2f below minimum %.2f", ErrInvalidCommand, cmd.stake, floor)
		}
		s.mu.Lock()
		s.baseStake = cmd.stake
		s.mu.Unlock()
		s.publishStatus(fmt.Sprintf("base stake %.2f", cmd.stake))
		return nil

	case CmdStrategy:
		if err := s.selector.Switch(cmd.variant); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		return nil

	case CmdAccount:
		return s.switchAccount(ctx, cmd.account)
	}
	return fmt.Errorf("%w: %q", ErrInvalidCommand, cmd.kind)
}

func (s *Session) resume(ctx context.Context) error {
	if p := s.phaseNow(); p != models.PhasePaused {
		return fmt.Errorf("%w: resume while %s", ErrInvalidCommand, p)
	}
	if err := s.risk.Halted(); err != nil {
		return err
	}
	if !s.started {
		s.startAttempt = 0
		return s.retryStart(ctx)
	}
	switch s.deps.Venue.Phase() {
	case models.ConnConnected:
	case models.ConnDisconnected:
		cctx, cancel := context.WithTimeout(ctx, resumeTimeout)
		defer cancel()
		if err := s.deps.Venue.Connect(cctx); err != nil {
			return err
		}
	default:
		// still reconnecting: the CONNECTED transition finishes the resume
		s.pausedByLink = true
		s.publishStatus("waiting for connection")
		return nil
	}
	s.pausedByLink = false
	s.setPhase(models.PhaseActive, "resumed")
	return nil
}

// switchAccount re-authorizes on the other account type and moves to its
// ledger. It is refused while a position is open or an order is in flight.
func (s *Session) switchAccount(ctx context.Context, to models.AccountType) error {
	if to != models.AccountDemo && to != models.AccountReal {
		return fmt.Errorf("%w: account type %q", ErrInvalidCommand, to)
	}
	s.mu.RLock()
	busy := s.position != nil || s.placing
	cur := s.state.AccountType
	s.mu.RUnlock()
	if busy {
		return fmt.Errorf("%w: position open", ErrInvalidCommand)
	}
	if cur == to {
		return nil
	}

	token, err := s.deps.Credentials.Token(ctx, s.cfg.UserID, to)
	if err != nil {
		return err
	}
	actx, cancel := context.WithTimeout(ctx, resumeTimeout)
	defer cancel()
	acct, err := s.deps.Venue.Authorize(actx, token)
	if err != nil {
		if errors.Is(err, errs.ErrAuth) {
			s.halt("authorization failed", err)
		}
		return err
	}

	s.persist(ctx)
	s.adoptAccount(ctx, acct, to)
	if err := s.deps.Venue.SubscribeBalance(actx, s.onBalanceStream); err != nil {
		s.log.Warn("session: balance stream unavailable", logger.Error(err))
	}
	s.log.Info("session: account switched", logger.String("account_type", string(to)), logger.String("session_id", s.ID()))
	s.publishStatus("account " + string(to))
	s.publishBalance(acct.Balance)
	return nil
}
