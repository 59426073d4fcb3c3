package matting

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/amankumarsingh77/backdrop/internal/media"
)

// ConstantOracle returns the same alpha for every pixel and the input frame
// itself as the foreground estimate. Its state is the number of frames seen
// so far, which makes state threading observable.
type ConstantOracle struct {
	Alpha float32
	// OutWidth and OutHeight, when set, make the oracle return mattes and
	// foregrounds of that size instead of the frame size.
	OutWidth  int
	OutHeight int
	// Err, when set, is returned from every call.
	Err error

	mu          sync.Mutex
	batchSizes  []int
	inputStates []uint32
	closed      bool
}

func NewConstantOracle(alpha float32) *ConstantOracle {
	return &ConstantOracle{Alpha: alpha}
}

// ConstantFactory returns a Factory yielding a new ConstantOracle per job.
// Each created oracle is passed to observe when it is not nil.
func ConstantFactory(alpha float32, observe func(*ConstantOracle)) Factory {
	return func(context.Context) (Oracle, error) {
		o := NewConstantOracle(alpha)
		if observe != nil {
			observe(o)
		}
		return o, nil
	}
}

func (o *ConstantOracle) ProcessBatch(_ context.Context, frames []*media.Frame, state RecurrentState) (*Result, RecurrentState, error) {
	if o.Err != nil {
		return nil, nil, o.Err
	}
	seen := decodeCounter(state)

	o.mu.Lock()
	o.batchSizes = append(o.batchSizes, len(frames))
	o.inputStates = append(o.inputStates, seen)
	o.mu.Unlock()

	res := &Result{}
	for _, f := range frames {
		w, h := f.Width, f.Height
		if o.OutWidth > 0 && o.OutHeight > 0 {
			w, h = o.OutWidth, o.OutHeight
		}
		res.Alphas = append(res.Alphas, media.UniformMatte(w, h, o.Alpha))
		fg := f.ToFloat()
		if w != f.Width || h != f.Height {
			fg = media.NewFloatImage(w, h)
			for i := range fg.Pix {
				fg.Pix[i] = float32(f.Pix[i%len(f.Pix)]) / 255
			}
		}
		res.Foregrounds = append(res.Foregrounds, fg)
	}
	return res, encodeCounter(seen + uint32(len(frames))), nil
}

func (o *ConstantOracle) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

// BatchSizes returns the size of every batch received, in order.
func (o *ConstantOracle) BatchSizes() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.batchSizes...)
}

// InputStates returns the frame counter carried in by each call.
func (o *ConstantOracle) InputStates() []uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]uint32(nil), o.inputStates...)
}

func (o *ConstantOracle) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func decodeCounter(s RecurrentState) uint32 {
	if len(s) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(s)
}

func encodeCounter(n uint32) RecurrentState {
	s := make(RecurrentState, 4)
	binary.BigEndian.PutUint32(s, n)
	return s
}
