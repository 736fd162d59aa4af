package ncp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	"zigbee-ncp-host/internal/ash"
)

// DefaultTickInterval drives ASH retransmission timing.
const DefaultTickInterval = 50 * time.Millisecond

// Port is the byte channel to the NCP. A serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
}

// OpenSerial opens a UART at 8N1 and asserts DTR/RTS, which USB bridges on
// EFR32 sticks need before the NCP will talk.
func OpenSerial(name string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("ncp: open %s: %w", name, err)
	}
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)
	return port, nil
}

// Link pumps bytes between a Port and a Driver: one goroutine reads and
// feeds, one writes what the driver queues, one ticks retransmission.
type Link struct {
	port         Port
	driver       *Driver
	logger       *slog.Logger
	tickInterval time.Duration

	cancel    context.CancelFunc
	group     *errgroup.Group
	closeOnce sync.Once
	closeErr  error
}

// NewLink ties port to driver. tickInterval <= 0 selects the default.
func NewLink(port Port, driver *Driver, tickInterval time.Duration, logger *slog.Logger) *Link {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Link{port: port, driver: driver, logger: logger, tickInterval: tickInterval}
}

// Start flushes the NCP receiver with a Cancel byte and starts the pumps.
func (l *Link) Start(ctx context.Context) error {
	if _, err := l.port.Write([]byte{ash.Cancel}); err != nil {
		return fmt.Errorf("ncp: flush: %w", err)
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.group, ctx = errgroup.WithContext(ctx)
	l.group.Go(func() error { return l.report(l.readLoop(ctx)) })
	l.group.Go(func() error { return l.report(l.writeLoop(ctx)) })
	l.group.Go(func() error { return l.report(l.tickLoop(ctx)) })
	return nil
}

// report takes the driver link down when a pump dies on its own.
func (l *Link) report(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrClosed) {
		return err
	}
	l.logger.Error("ncp pump stopped", "err", err)
	l.driver.Fail(err)
	return err
}

// Wait blocks until the pumps stop and returns the first pump error.
func (l *Link) Wait() error {
	if l.group == nil {
		return nil
	}
	err := l.group.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Close stops the pumps, closes the port and then the driver.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
		l.closeErr = l.port.Close()
		if err := l.Wait(); err != nil {
			l.logger.Warn("ncp link stopped", "err", err)
		}
		l.driver.Close()
	})
	return l.closeErr
}

func (l *Link) readLoop(ctx context.Context) error {
	buf := make([]byte, 256)
	backoff := 10 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			backoff = 10 * time.Millisecond
			l.logger.Debug("ncp RX bytes", "len", n)
			if _, ferr := l.driver.Feed(buf[:n]); errors.Is(ferr, ErrClosed) {
				return ferr
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != io.EOF && !strings.Contains(err.Error(), "closed") {
			l.logger.Error("ncp read error", "err", err)
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func (l *Link) writeLoop(ctx context.Context) error {
	for {
		out, err := l.driver.NextOutgoing(ctx)
		if err != nil {
			return err
		}
		if _, err := l.port.Write(out); err != nil {
			return fmt.Errorf("ncp: serial write: %w", err)
		}
		l.logger.Debug("ncp TX bytes", "len", len(out))
	}
}

func (l *Link) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if err := l.driver.Tick(now); errors.Is(err, ErrClosed) {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
