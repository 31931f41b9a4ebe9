package graph

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrFormat marks a malformed or invariant-violating graph.
var ErrFormat = errors.New("invalid graph format")

// Record sizes.
const (
	PoseLen       = 12
	ProjectionLen = 4
)

func formatErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrFormat}, args...)...)
}

// Validate checks the structural invariants of the graph and reports every
// violation found. The returned error matches ErrFormat.
func (g *Graph) Validate() error {
	var err error

	models := make(map[int]*Model, len(g.Models))
	for i := range g.Models {
		m := &g.Models[i]
		if _, dup := models[m.ID]; dup {
			err = multierr.Append(err, formatErr("duplicate model id %d", m.ID))
			continue
		}
		models[m.ID] = m
		if len(m.WorldTModel) != PoseLen {
			err = multierr.Append(err, formatErr("model %d: world_T_model has %d values, want %d", m.ID, len(m.WorldTModel), PoseLen))
		}
	}

	frames := make(map[int]*Frame, len(g.Frames))
	for i := range g.Frames {
		f := &g.Frames[i]
		if _, dup := frames[f.ID]; dup {
			err = multierr.Append(err, formatErr("duplicate frame id %d", f.ID))
			continue
		}
		frames[f.ID] = f
		if len(f.ModelTFrame) != PoseLen {
			err = multierr.Append(err, formatErr("frame %d: model_T_frame has %d values, want %d", f.ID, len(f.ModelTFrame), PoseLen))
		}
		if len(f.Projection) != ProjectionLen {
			err = multierr.Append(err, formatErr("frame %d: projmatrix has %d values, want %d", f.ID, len(f.Projection), ProjectionLen))
		}
		if _, ok := models[f.ModelID]; !ok {
			err = multierr.Append(err, formatErr("frame %d: unknown model id %d", f.ID, f.ModelID))
		}
	}

	owner := make(map[int]int, len(g.Frames))
	for i := range g.Models {
		m := &g.Models[i]
		for _, fid := range m.FrameIDs {
			f, ok := frames[fid]
			if !ok {
				err = multierr.Append(err, formatErr("model %d: unknown frame id %d", m.ID, fid))
				continue
			}
			if prev, seen := owner[fid]; seen {
				err = multierr.Append(err, formatErr("frame %d listed by models %d and %d", fid, prev, m.ID))
				continue
			}
			owner[fid] = m.ID
			if f.ModelID != m.ID {
				err = multierr.Append(err, formatErr("frame %d: model_id %d does not match owning model %d", fid, f.ModelID, m.ID))
			}
		}
	}

	for i := range g.Frames {
		if _, ok := owner[g.Frames[i].ID]; !ok {
			err = multierr.Append(err, formatErr("frame %d is not listed by any model", g.Frames[i].ID))
		}
	}

	return err
}
