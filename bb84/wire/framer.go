// Package wire carries protocol buffer messages between the two ends of a
// measurement-channel connection.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/alan-christopher/qkd/bb84/bitmap"
	"google.golang.org/protobuf/proto"
)

var (
	DefaultEpsilonAuth   = 1e-12
	DefaultMaxFrameBytes = 64 << 10
)

// ErrFrameTooLarge is returned when a frame exceeds the negotiated maximum.
var ErrFrameTooLarge = errors.New("wire: frame too large")

// Counters tallies the traffic that passed through a Framer.
type Counters struct {
	MessagesSent     int
	MessagesReceived int
	BytesSent        int
	BytesRead        int
}

// FramerOpts configures a Framer. Zero values select defaults.
type FramerOpts struct {
	// EpsilonAuth specifies the probability that we are willing to accept that
	// a forged frame verifies. Each frame spends log_2(1/EpsilonAuth) bits of
	// Secret, rounded up to the nearest byte.
	//
	// Defaults to DefaultEpsilonAuth.
	EpsilonAuth float64

	// MaxFrameBytes bounds the marshalled size of a single message. Both ends
	// must agree on it, since it determines how much of Secret is spent on the
	// hash matrix. Defaults to DefaultMaxFrameBytes.
	MaxFrameBytes int
}

// A Framer reads and writes framed protocol buffers to the wire.
// The structure of the frame is trivial:  proto-length | proto | mac
//
// MACs are computed by applying a secret Toeplitz matrix to create a hash, then
// applying a one-time pad to the hash. See also,
// https://arxiv.org/abs/1603.08387.
//
// Both ends must be constructed from identical secrets and must exchange
// frames in lockstep; every frame consumes pad on each side.
type Framer struct {
	rw       io.ReadWriter
	secret   io.Reader
	t        toeplitz
	maxFrame int
	counters Counters
}

// NewFramer returns a Framer over rw, authenticated with key material drawn
// from secret.
func NewFramer(rw io.ReadWriter, secret io.Reader, opts FramerOpts) (*Framer, error) {
	if rw == nil {
		return nil, errors.New("must provide a connection")
	}
	if secret == nil {
		return nil, errors.New("must provide Secret")
	}
	eps := opts.EpsilonAuth
	if eps == 0 {
		eps = DefaultEpsilonAuth
	}
	if eps <= 0 || eps >= 1 {
		return nil, fmt.Errorf("EpsilonAuth must lie in (0, 1), got %v", eps)
	}
	maxFrame := opts.MaxFrameBytes
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrameBytes
	}
	m := int(math.Ceil(math.Log2(1 / eps)))
	diags := make([]byte, bitmap.BytesFor(m+8*maxFrame))
	if _, err := io.ReadFull(secret, diags); err != nil {
		return nil, fmt.Errorf("reading hash diagonals: %w", err)
	}
	return &Framer{
		rw:       rw,
		secret:   secret,
		t:        toeplitz{diags: bitmap.NewDense(diags, -1), m: m},
		maxFrame: maxFrame,
	}, nil
}

// Counters returns the traffic seen by f so far.
func (f *Framer) Counters() Counters {
	return f.counters
}

// SetDeadline forwards to the underlying connection when it supports
// deadlines, and is a no-op otherwise.
func (f *Framer) SetDeadline(t time.Time) error {
	if d, ok := f.rw.(interface{ SetDeadline(time.Time) error }); ok {
		return d.SetDeadline(t)
	}
	return nil
}

// Write marshals m and sends it as a single authenticated frame.
func (f *Framer) Write(m proto.Message) error {
	marshalled, err := proto.Marshal(m)
	if err != nil {
		return err
	}
	if len(marshalled) > f.maxFrame {
		return fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(marshalled), f.maxFrame)
	}
	if err := binary.Write(f.rw, binary.LittleEndian, int32(len(marshalled))); err != nil {
		return err
	}
	if _, err := f.rw.Write(marshalled); err != nil {
		return err
	}
	mac, err := f.buildMAC(marshalled)
	if err != nil {
		return err
	}
	if _, err := f.rw.Write(mac); err != nil {
		return err
	}
	f.counters.MessagesSent++
	f.counters.BytesSent += 4 + len(marshalled) + len(mac)
	return nil
}

// Read receives a single frame, verifies its MAC and unmarshals it into m.
// A cleanly closed connection yields io.EOF.
func (f *Framer) Read(m proto.Message) error {
	var mLen int32
	if err := binary.Read(f.rw, binary.LittleEndian, &mLen); err != nil {
		return err
	}
	if mLen < 0 || int(mLen) > f.maxFrame {
		return fmt.Errorf("%w: peer announced %d bytes", ErrFrameTooLarge, mLen)
	}
	marshalled := make([]byte, mLen)
	if _, err := io.ReadFull(f.rw, marshalled); err != nil {
		return err
	}
	mac := make([]byte, bitmap.BytesFor(f.t.m))
	if _, err := io.ReadFull(f.rw, mac); err != nil {
		return err
	}
	emac, err := f.buildMAC(marshalled)
	if err != nil {
		return err
	}
	if !bytes.Equal(mac, emac) {
		return fmt.Errorf("invalid mac: got %v, expected %v", mac, emac)
	}
	f.counters.MessagesReceived++
	f.counters.BytesRead += 4 + len(marshalled) + len(mac)
	return proto.Unmarshal(marshalled, m)
}

func (f *Framer) buildMAC(msg []byte) ([]byte, error) {
	hash, err := f.t.hash(msg)
	if err != nil {
		return nil, err
	}
	otp := make([]byte, hash.SizeBytes())
	if _, err := io.ReadFull(f.secret, otp); err != nil {
		return nil, fmt.Errorf("reading one-time pad: %w", err)
	}
	mac := bitmap.XOr(hash, bitmap.NewDense(otp, hash.Size()))
	return mac.Data(), nil
}
