package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxFrameSize bounds a single line on the wire.
const DefaultMaxFrameSize = 64 * 1024

var (
	// ErrMalformed marks a frame that is not a JSON envelope. Readers skip it.
	ErrMalformed = errors.New("malformed frame")
	// ErrFrameTooLarge marks a line longer than the decoder's limit. The
	// line is discarded and the stream stays usable.
	ErrFrameTooLarge = errors.New("frame too large")
)

// IsSkippable reports whether err only invalidates the current frame.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrFrameTooLarge)
}

// Encoder writes one JSON envelope per line. It is safe for concurrent use;
// each envelope reaches the writer in a single Write call.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s envelope: %w", env.Type, err)
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s envelope: %w", env.Type, err)
	}
	return nil
}

// Decoder reads newline-delimited envelopes. Blank lines are ignored.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a decoder that rejects lines longer than maxFrameSize
// bytes. A non-positive size selects DefaultMaxFrameSize.
func NewDecoder(r io.Reader, maxFrameSize int) *Decoder {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{r: bufio.NewReaderSize(r, maxFrameSize)}
}

// Decode returns the next envelope. Errors wrapping ErrMalformed or
// ErrFrameTooLarge leave the decoder positioned at the next frame; any other
// error comes from the underlying reader and ends the stream.
func (d *Decoder) Decode() (Envelope, error) {
	for {
		line, err := d.r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if err := d.discardLine(); err != nil {
				return Envelope{}, err
			}
			return Envelope{}, ErrFrameTooLarge
		}
		if err != nil {
			// an unterminated final frame still counts
			if errors.Is(err, io.EOF) && len(bytes.TrimSpace(line)) > 0 {
				return parse(bytes.TrimSpace(line))
			}
			return Envelope{}, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return parse(line)
	}
}

func (d *Decoder) discardLine() error {
	for {
		_, err := d.r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return err
	}
}

func parse(line []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}
