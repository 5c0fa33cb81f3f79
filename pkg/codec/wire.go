package codec

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/GoAskAway/rill-sub003/pkg/proto"
)

// JSONWire marshals an OperationBatch to its normative wire shape. JSON
// is the protocol's baseline transport.
func JSONWire(batch proto.OperationBatch) ([]byte, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(batch)
}

// ParseJSONWire is the inverse of JSONWire.
func ParseJSONWire(data []byte) (proto.OperationBatch, error) {
	var batch proto.OperationBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return proto.OperationBatch{}, fmt.Errorf("codec: parse json wire batch: %w", err)
	}
	if err := batch.Validate(); err != nil {
		return proto.OperationBatch{}, err
	}
	return batch, nil
}

// MsgpackWire marshals an OperationBatch to msgpack, an optional compact
// transport for high-frequency batches. It round-trips through the same
// JSON-shaped struct tags OperationBatch's MarshalJSON produces, so a
// msgpack-decoding peer sees the identical field set as JSON.
func MsgpackWire(batch proto.OperationBatch) ([]byte, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	jsonShape, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(jsonShape, &generic); err != nil {
		return nil, err
	}
	return msgpack.Marshal(generic)
}

// ParseMsgpackWire is the inverse of MsgpackWire.
func ParseMsgpackWire(data []byte) (proto.OperationBatch, error) {
	var generic any
	if err := msgpack.Unmarshal(data, &generic); err != nil {
		return proto.OperationBatch{}, fmt.Errorf("codec: parse msgpack wire batch: %w", err)
	}
	jsonShape, err := json.Marshal(generic)
	if err != nil {
		return proto.OperationBatch{}, err
	}
	var batch proto.OperationBatch
	if err := json.Unmarshal(jsonShape, &batch); err != nil {
		return proto.OperationBatch{}, fmt.Errorf("codec: parse msgpack wire batch: %w", err)
	}
	if err := batch.Validate(); err != nil {
		return proto.OperationBatch{}, err
	}
	return batch, nil
}
