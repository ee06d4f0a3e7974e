// Package serialbridge talks to a microcontroller that owns the ADC, the
// keypad and the pump relay over a UART line protocol.
//
// MCU to host, one message per line:
//
//	ADC <raw>    latest soil sensor sample (0-4095)
//	KEY <sym>    a keypad press (0-9, A-D, *, #)
//
// Host to MCU:
//
//	PUMP 1|0     drive the pump relay
package serialbridge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"github.com/sweeney/soil-controller/internal/logic"
)

const (
	// DefaultBaudRate matches the bridge firmware.
	DefaultBaudRate = 115200
	// DefaultKeyBuffer is the number of unread key presses kept.
	DefaultKeyBuffer = 16
)

var (
	// ErrNoData is returned by Read before the first ADC line arrives.
	ErrNoData = errors.New("no sample received from bridge")
	// ErrStale is returned by Read when the latest sample is too old.
	ErrStale = errors.New("bridge sample is stale")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bridge closed")
)

// Kind is the type of an MCU message.
type Kind string

const (
	KindADC Kind = "ADC"
	KindKey Kind = "KEY"
)

// Message is one parsed line from the MCU.
type Message struct {
	Kind Kind
	Raw  int
	Key  logic.Key
}

// Options tunes a Bridge.
type Options struct {
	// StaleAfter makes Read fail when no ADC line arrived for this long.
	// Zero disables the check.
	StaleAfter time.Duration

	KeyBuffer int

	// Now is the clock used for staleness; defaults to time.Now.
	Now func() time.Time
}

// Bridge is a connection to the MCU. Read, Poll and Set may be called from
// the control loop while a goroutine consumes incoming lines.
type Bridge struct {
	conn io.ReadWriteCloser
	opts Options
	keys chan logic.Key
	done chan struct{}

	mu       sync.Mutex
	raw      int
	rawAt    time.Time
	haveRaw  bool
	closed   bool
	readErr  error
	writeMu  sync.Mutex
	closeErr error
}

// Open opens the serial port and starts reading.
func Open(name string, baudRate int, opts Options) (*Bridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	log.Info().Str("port", name).Int("baud", baudRate).Msg("serial bridge connected")
	return New(port, opts), nil
}

// New starts a bridge over an already open connection.
func New(conn io.ReadWriteCloser, opts Options) *Bridge {
	if opts.KeyBuffer <= 0 {
		opts.KeyBuffer = DefaultKeyBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	b := &Bridge{
		conn: conn,
		opts: opts,
		keys: make(chan logic.Key, opts.KeyBuffer),
		done: make(chan struct{}),
	}
	go b.readLoop()
	return b
}

// Read returns the latest ADC sample.
func (b *Bridge) Read() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.closed:
		return 0, ErrClosed
	case !b.haveRaw && b.readErr != nil:
		return 0, fmt.Errorf("%w: %v", ErrNoData, b.readErr)
	case !b.haveRaw:
		return 0, ErrNoData
	}
	if b.opts.StaleAfter > 0 {
		if age := b.opts.Now().Sub(b.rawAt); age > b.opts.StaleAfter {
			return 0, fmt.Errorf("%w: last sample %s ago", ErrStale, age.Round(time.Millisecond))
		}
	}
	return b.raw, nil
}

// Poll returns the next queued key press without blocking.
func (b *Bridge) Poll() (logic.Key, bool) {
	select {
	case k := <-b.keys:
		return k, true
	default:
		return logic.KeyNone, false
	}
}

// Set sends a pump command.
func (b *Bridge) Set(on bool) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := io.WriteString(b.conn, FormatPump(on)); err != nil {
		return fmt.Errorf("send pump command: %w", err)
	}
	return nil
}

// Close stops the reader and closes the connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return b.closeErr
	}
	b.closed = true
	b.mu.Unlock()

	err := b.conn.Close()
	<-b.done

	b.mu.Lock()
	b.closeErr = err
	b.mu.Unlock()
	return err
}

func (b *Bridge) readLoop() {
	defer close(b.done)

	scanner := bufio.NewScanner(b.conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, err := ParseLine(line)
		if err != nil {
			log.Debug().Err(err).Str("line", line).Msg("ignoring bridge line")
			continue
		}
		b.handle(msg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	b.readErr = err
	b.haveRaw = false
	log.Warn().Err(err).Msg("serial bridge reader stopped")
}

func (b *Bridge) handle(msg Message) {
	switch msg.Kind {
	case KindADC:
		b.mu.Lock()
		b.raw = msg.Raw
		b.rawAt = b.opts.Now()
		b.haveRaw = true
		b.mu.Unlock()
	case KindKey:
		select {
		case b.keys <- msg.Key:
		default:
			log.Warn().Str("key", msg.Key.String()).Msg("key buffer full, dropping key")
		}
	}
}

// ParseLine parses one MCU line.
func ParseLine(line string) (Message, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Message{}, fmt.Errorf("invalid line format: expected 2 fields, got %d", len(fields))
	}

	switch Kind(strings.ToUpper(fields[0])) {
	case KindADC:
		v, err := strconv.Atoi(fields[1])
		if err != nil {
			return Message{}, fmt.Errorf("invalid reading: %w", err)
		}
		return Message{Kind: KindADC, Raw: v}, nil

	case KindKey:
		k, ok := logic.ParseKey(fields[1])
		if !ok {
			return Message{}, fmt.Errorf("invalid key %q", fields[1])
		}
		return Message{Kind: KindKey, Key: k}, nil
	}
	return Message{}, fmt.Errorf("unknown message %q", fields[0])
}

// FormatPump returns the pump command line.
func FormatPump(on bool) string {
	if on {
		return "PUMP 1\n"
	}
	return "PUMP 0\n"
}
