package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domrepo "BinPull/internal/domain/repository"
	pkgkafka "BinPull/pkg/kafka"
	"BinPull/pkg/logger"
	"BinPull/pkg/queue"
)

// Command is the transport form of a control action.
type Command struct {
	Command      CommandKind `json:"command"`
	UserID       string      `json:"user_id"`
	AccountType  string      `json:"account_type,omitempty"`
	Strategy     string      `json:"strategy,omitempty"`
	BaseStake    float64     `json:"base_stake,omitempty"`
	Symbols      []string    `json:"symbols,omitempty"`
	TargetTrades int         `json:"target_trades,omitempty"`
	IssuedAt     int64       `json:"issued_at,omitempty"`
}

// Dispatcher applies commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, c Command) error
}

// CommandHandler consumes the command topic and applies each message to the
// session manager. Malformed messages are rejected so they reach the DLQ;
// commands that are merely invalid for the session's state are logged and
// acknowledged.
type CommandHandler struct {
	topic   string
	target  Dispatcher
	metrics domrepo.Metrics
	log     *logger.Logger
	timeout time.Duration
}

func NewCommandHandler(topic string, target Dispatcher, metrics domrepo.Metrics, log *logger.Logger) *CommandHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CommandHandler{topic: topic, target: target, metrics: metrics, log: log, timeout: 45 * time.Second}
}

func (h *CommandHandler) Topic() string { return h.topic }

// Type is the message type on the Redis command queue.
func (h *CommandHandler) Type() string { return CommandMessageType }

// incoming message schema: {command, user_id, account_type, strategy, base_stake, symbols, target_trades, issued_at}
func (h *CommandHandler) Handle(ctx context.Context, b []byte) error {
	var c Command
	if err := json.Unmarshal(b, &c); err != nil {
		h.metrics.RecordError("command_unmarshal")
		return fmt.Errorf("command: decode: %w: %w", pkgkafka.ErrPermanent, err)
	}
	if c.UserID == "" || c.Command == "" {
		h.metrics.RecordError("command_invalid")
		return fmt.Errorf("%w: %w: command and user_id required", pkgkafka.ErrPermanent, ErrInvalidCommand)
	}
	if c.IssuedAt > 0 {
		h.metrics.RecordLatency("command_e2e", time.Since(time.Unix(c.IssuedAt, 0)).Seconds())
	}

	cctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	start := time.Now()
	err := h.target.Dispatch(cctx, c)
	h.metrics.RecordLatency("command_"+string(c.Command), time.Since(start).Seconds())
	if err == nil {
		h.log.Info("command: applied",
			logger.String("command", string(c.Command)),
			logger.String("user_id", c.UserID),
			logger.String("trace_id", pkgkafka.TraceIDFrom(ctx)))
		return nil
	}
	h.metrics.RecordError("command")
	if errors.Is(err, ErrInvalidCommand) || errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionNotRunning) || errors.Is(err, ErrSessionExists) {
		h.log.Warn("command: rejected", logger.String("command", string(c.Command)), logger.String("user_id", c.UserID), logger.Error(err))
		return nil
	}
	return err
}

// CommandMessageType tags session commands on the Redis queue.
const CommandMessageType = "session_command"

var (
	_ pkgkafka.MessageHandler = (*CommandHandler)(nil)
	_ queue.Job               = (*CommandHandler)(nil)
)
