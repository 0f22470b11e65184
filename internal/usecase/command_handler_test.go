package usecase

import (
	"context"
	"errors"
	"testing"
)

type recordingDispatcher struct {
	got []Command
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, c Command) error {
	d.got = append(d.got, c)
	return d.err
}

func TestCommandHandlerDispatches(t *testing.T) {
	d := &recordingDispatcher{}
	h := NewCommandHandler("binpull.commands", d, nil, nil)
	if h.Topic() != "binpull.commands" {
		t.Fatalf("topic = %s", h.Topic())
	}
	err := h.Handle(context.Background(), []byte(`{"command":"stake","user_id":"u1","base_stake":2.5}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(d.got) != 1 || d.got[0].Command != CmdStake || d.got[0].BaseStake != 2.5 {
		t.Fatalf("dispatched %+v", d.got)
	}
}

func TestCommandHandlerRejectsMalformed(t *testing.T) {
	h := NewCommandHandler("t", &recordingDispatcher{}, nil, nil)
	if err := h.Handle(context.Background(), []byte(`{not json`)); err == nil {
		t.Fatal("malformed message must fail so it reaches the DLQ")
	}
	if err := h.Handle(context.Background(), []byte(`{"command":"stop"}`)); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("missing user: %v", err)
	}
}

func TestCommandHandlerAcksStateErrors(t *testing.T) {
	h := NewCommandHandler("t", &recordingDispatcher{err: ErrSessionNotFound}, nil, nil)
	if err := h.Handle(context.Background(), []byte(`{"command":"pause","user_id":"u1"}`)); err != nil {
		t.Fatalf("state errors are acknowledged, got %v", err)
	}

	boom := errors.New("redis down")
	h = NewCommandHandler("t", &recordingDispatcher{err: boom}, nil, nil)
	if err := h.Handle(context.Background(), []byte(`{"command":"start","user_id":"u1"}`)); !errors.Is(err, boom) {
		t.Fatalf("infrastructure errors propagate, got %v", err)
	}
}
