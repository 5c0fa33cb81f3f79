package proto

import (
	"encoding/json"
	"fmt"
)

// BatchId is the batch sequence number the producer puts on an
// OperationBatch. The Bridge passes it through unchanged and neither
// assigns nor checks it; the Engine's __sendOperation global sends every
// batch with BatchId 0.
type BatchId int64

// WireVersion is the only batch envelope version this module understands.
// A batch carrying any other Version is rejected by Validate before any
// operation in it is applied.
const WireVersion = 1

// OperationBatch is the Guest→Host wire envelope: a version tag, the
// producer's batch sequence number, and the ordered operations to apply.
// Operations within one batch apply left to right; batches themselves
// apply in the order the Host receives them.
type OperationBatch struct {
	Version    int     `json:"version"`
	BatchId    BatchId `json:"batchId"`
	Operations []Op    `json:"operations"`
}

// Validate reports whether the envelope carries a wire version this
// module understands. Per the protocol, an incompatible version is fatal
// for the whole batch: the caller should reject it rather than attempt a
// partial apply.
func (b *OperationBatch) Validate() error {
	if b.Version != WireVersion {
		return fmt.Errorf("proto: unsupported batch version %d (want %d)", b.Version, WireVersion)
	}
	return nil
}

// wireOp is the on-the-wire shape of a single operation: a discriminant
// field plus every possible payload field, all optional. Encoding picks
// the subset the concrete Op populates; decoding dispatches on Op before
// reading the rest.
type wireOp struct {
	Op           Tag            `json:"op"`
	Id           NodeId         `json:"id,omitempty"`
	Type         string         `json:"type,omitempty"`
	Props        map[string]any `json:"props,omitempty"`
	RemovedProps []string       `json:"removedProps,omitempty"`
	ParentId     NodeId         `json:"parentId,omitempty"`
	ChildId      NodeId         `json:"childId,omitempty"`
	Index        *int           `json:"index,omitempty"`
	ChildIds     []NodeId       `json:"childIds,omitempty"`
	Text         string         `json:"text,omitempty"`
}

func toWire(op Op) (wireOp, error) {
	switch o := op.(type) {
	case Create:
		return wireOp{Op: TagCreate, Id: o.Id, Type: o.Type, Props: o.Props}, nil
	case Update:
		return wireOp{Op: TagUpdate, Id: o.Id, Props: o.Props, RemovedProps: o.RemovedProps}, nil
	case Append:
		return wireOp{Op: TagAppend, ParentId: o.ParentId, ChildId: o.ChildId}, nil
	case Insert:
		idx := o.Index
		return wireOp{Op: TagInsert, ParentId: o.ParentId, ChildId: o.ChildId, Index: &idx}, nil
	case Remove:
		return wireOp{Op: TagRemove, ParentId: o.ParentId, ChildId: o.ChildId}, nil
	case Delete:
		return wireOp{Op: TagDelete, Id: o.Id}, nil
	case Reorder:
		return wireOp{Op: TagReorder, ParentId: o.ParentId, ChildIds: o.ChildIds}, nil
	case Text:
		return wireOp{Op: TagText, Id: o.Id, Text: o.Text}, nil
	default:
		return wireOp{}, fmt.Errorf("proto: unknown op type %T", op)
	}
}

func fromWire(w wireOp) (Op, error) {
	switch w.Op {
	case TagCreate:
		// omitempty drops an empty props map on the wire; read it back as {}.
		props := w.Props
		if props == nil {
			props = map[string]any{}
		}
		return Create{Id: w.Id, Type: w.Type, Props: props}, nil
	case TagUpdate:
		return Update{Id: w.Id, Props: w.Props, RemovedProps: w.RemovedProps}, nil
	case TagAppend:
		return Append{ParentId: w.ParentId, ChildId: w.ChildId}, nil
	case TagInsert:
		idx := 0
		if w.Index != nil {
			idx = *w.Index
		}
		return Insert{ParentId: w.ParentId, ChildId: w.ChildId, Index: idx}, nil
	case TagRemove:
		return Remove{ParentId: w.ParentId, ChildId: w.ChildId}, nil
	case TagDelete:
		return Delete{Id: w.Id}, nil
	case TagReorder:
		ids := w.ChildIds
		if ids == nil {
			ids = []NodeId{}
		}
		return Reorder{ParentId: w.ParentId, ChildIds: ids}, nil
	case TagText:
		return Text{Id: w.Id, Text: w.Text}, nil
	default:
		return nil, fmt.Errorf("proto: unknown wire op tag %q", w.Op)
	}
}

// MarshalJSON renders the batch to the normative wire shape described in
// the protocol: a discriminated array of operations under "operations".
func (b OperationBatch) MarshalJSON() ([]byte, error) {
	wireOps := make([]wireOp, len(b.Operations))
	for i, op := range b.Operations {
		w, err := toWire(op)
		if err != nil {
			return nil, err
		}
		wireOps[i] = w
	}
	return json.Marshal(struct {
		Version    int      `json:"version"`
		BatchId    BatchId  `json:"batchId"`
		Operations []wireOp `json:"operations"`
	}{b.Version, b.BatchId, wireOps})
}

// UnmarshalJSON parses the wire shape produced by MarshalJSON, dispatching
// each operation to its concrete type by its "op" discriminant. An
// unrecognized discriminant is an error here: malformed-op tolerance is
// the Receiver's job (it logs and no-ops), not the wire decoder's.
func (b *OperationBatch) UnmarshalJSON(data []byte) error {
	var raw struct {
		Version    int      `json:"version"`
		BatchId    BatchId  `json:"batchId"`
		Operations []wireOp `json:"operations"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ops := make([]Op, len(raw.Operations))
	for i, w := range raw.Operations {
		op, err := fromWire(w)
		if err != nil {
			return err
		}
		ops[i] = op
	}
	b.Version = raw.Version
	b.BatchId = raw.BatchId
	b.Operations = ops
	return nil
}
