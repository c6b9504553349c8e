package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
)

// ErrCommandPanic is reported when a manual command panicked and the listener stopped.
var ErrCommandPanic = errors.New("manual command panicked")

// Commander executes the operator's manual commands. *monitor.Monitor satisfies it.
type Commander interface {
	Kill(ctx context.Context) error
	Restart(ctx context.Context) error
}

// Reason tells why the listener returned.
type Reason int

const (
	ReasonExit       Reason = iota // operator asked to exit
	ReasonLoopEnded                // supervisor loop finished on its own
	ReasonCanceled                 // context canceled, e.g. by a signal
	ReasonPanic                    // a command panicked
)

func (r Reason) String() string {
	switch r {
	case ReasonExit:
		return "exit"
	case ReasonLoopEnded:
		return "loop_ended"
	case ReasonPanic:
		return "panic"
	default:
		return "canceled"
	}
}

const ctrlC = 0x03

// Help is printed at startup and whenever an unrecognized key is pressed.
var Help = []string{
	"",
	"Press key to execute:",
	"K - Force kill miner",
	"R - Restart miner",
	"X - Exit monitor (does not kill miner process)",
	"",
}

// PrintHelp writes the command help to w.
func PrintHelp(w io.Writer) {
	for _, l := range Help {
		_, _ = fmt.Fprintln(w, l)
	}
}

// Listener maps single key presses to commands.
type Listener struct {
	In       io.Reader
	Out      io.Writer
	Commands Commander
}

// Run handles keys until the operator exits, loopDone is closed or ctx is canceled.
// Commands run synchronously; Commander serializes them against the supervisor loop.
// End of input stops key handling but Run keeps waiting for the other two conditions.
// A panicking command is logged with its stack and ends Run with ReasonPanic.
func (l *Listener) Run(ctx context.Context, loopDone <-chan struct{}) (reason Reason) {
	keys := make(chan byte)
	stop := make(chan struct{})
	defer close(stop)
	go readKeys(l.In, keys, stop)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Manual command panicked", "panic", r, "stack", string(debug.Stack()))
			reason = ReasonPanic
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ReasonCanceled
		case <-loopDone:
			return ReasonLoopEnded
		case k, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			if l.handle(ctx, k) {
				return ReasonExit
			}
		}
	}
}

// handle runs the command for key k and reports whether it requests exit.
func (l *Listener) handle(ctx context.Context, k byte) bool {
	switch k {
	case 'k', 'K':
		if err := l.Commands.Kill(ctx); err != nil {
			slog.Error("Force kill failed", "error", err)
		}
	case 'r', 'R':
		if err := l.Commands.Restart(ctx); err != nil {
			slog.Error("Restart failed", "error", err)
		}
	case 'x', 'X', ctrlC:
		return true
	case '\r', '\n':
	default:
		PrintHelp(l.Out)
	}
	return false
}

func readKeys(r io.Reader, out chan<- byte, stop <-chan struct{}) {
	defer close(out)
	if r == nil {
		return
	}
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		select {
		case out <- b:
		case <-stop:
			return
		}
	}
}
