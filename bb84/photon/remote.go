package photon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alan-christopher/qkd/bb84/bitmap"
	"github.com/alan-christopher/qkd/bb84/wire"
	"google.golang.org/protobuf/types/known/structpb"
)

// A Remote is a Channel backed by a measurement service on the far end of an
// authenticated connection (see Serve). One call to Measure is exactly one
// request/response exchange carrying the whole batch.
type Remote struct {
	framer *wire.Framer
}

// NewRemote returns a Remote that talks over f.
func NewRemote(f *wire.Framer) *Remote {
	return &Remote{framer: f}
}

// Measure implements the Channel interface.
func (r *Remote) Measure(ctx context.Context, b Batch) (Outcome, error) {
	if err := b.Validate(); err != nil {
		return Outcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if d, ok := ctx.Deadline(); ok {
		if err := r.framer.SetDeadline(d); err != nil {
			return Outcome{}, fmt.Errorf("%w: setting deadline: %v", ErrChannel, err)
		}
		defer r.framer.SetDeadline(time.Time{})
	}
	req, err := encodeBatch(b)
	if err != nil {
		return Outcome{}, err
	}
	if err := r.framer.Write(req); err != nil {
		return Outcome{}, fmt.Errorf("%w: sending batch: %v", ErrChannel, err)
	}
	resp := new(structpb.Struct)
	if err := r.framer.Read(resp); err != nil {
		return Outcome{}, fmt.Errorf("%w: receiving outcome: %v", ErrChannel, err)
	}
	return decodeOutcome(resp, b.Size())
}

// Serve answers measurement requests arriving on f using ch, until the peer
// closes the connection or ctx is cancelled. Failures of ch are reported back
// to the peer rather than ending the loop.
func Serve(ctx context.Context, f *wire.Framer, ch Channel) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req := new(structpb.Struct)
		if err := f.Read(req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("receiving batch: %w", err)
		}
		var resp *structpb.Struct
		out, err := measureRequest(ctx, ch, req)
		if err == nil {
			resp, err = encodeOutcome(out)
		}
		if err != nil {
			resp = encodeError(err)
		}
		if err := f.Write(resp); err != nil {
			return fmt.Errorf("sending outcome: %w", err)
		}
	}
}

func measureRequest(ctx context.Context, ch Channel, req *structpb.Struct) (Outcome, error) {
	b, err := decodeBatch(req)
	if err != nil {
		return Outcome{}, err
	}
	return ch.Measure(ctx, b)
}

func encodeBatch(b Batch) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"bits":    b.Bits.String(),
		"bases":   b.Bases.String(),
		"measure": b.Measure.String(),
	})
}

func decodeBatch(s *structpb.Struct) (Batch, error) {
	var (
		b   Batch
		err error
	)
	fields := s.GetFields()
	if b.Bits, err = bitmap.FromString(fields["bits"].GetStringValue()); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if b.Bases, err = bitmap.FromString(fields["bases"].GetStringValue()); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if b.Measure, err = bitmap.FromString(fields["measure"].GetStringValue()); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return b, b.Validate()
}

func encodeOutcome(o Outcome) (*structpb.Struct, error) {
	counts := make(map[string]interface{}, len(o.Counts))
	for k, v := range o.Counts {
		counts[k] = v
	}
	return structpb.NewStruct(map[string]interface{}{
		"bits":   o.Bits.String(),
		"counts": counts,
	})
}

func encodeError(err error) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"error": structpb.NewStringValue(err.Error()),
	}}
}

func decodeOutcome(s *structpb.Struct, n int) (Outcome, error) {
	fields := s.GetFields()
	if msg, ok := fields["error"]; ok {
		return Outcome{}, fmt.Errorf("%w: remote: %s", ErrChannel, msg.GetStringValue())
	}
	counts := make(map[string]int)
	for k, v := range fields["counts"].GetStructValue().GetFields() {
		counts[k] = int(v.GetNumberValue())
	}
	if len(counts) == 0 {
		return Outcome{}, fmt.Errorf("%w: empty outcome histogram", ErrChannel)
	}
	bits, err := bitmap.FromString(fields["bits"].GetStringValue())
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrChannel, err)
	}
	if bits.Size() != n {
		return Outcome{}, fmt.Errorf("%w: got %d outcomes for %d qubits", ErrChannel, bits.Size(), n)
	}
	return Outcome{Bits: bits, Counts: counts}, nil
}
