package transport

import (
	"encoding/json"
	"fmt"

	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
)

// EncodeMessage serializes a Message for wire transmission. The wire
// format is deliberately left to the caller's discretion (spec.md's
// Non-goals exclude prescribing one), so this is plain JSON rather than a
// hand-authored protobuf schema: the gRPC transport carries the resulting
// bytes inside a wrapperspb.BytesValue rather than a generated message
// type, since no .proto-generated package exists to encode Message
// natively.
func EncodeMessage(msg pkgraft.Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("transport: encode message: %w", err)
	}
	return b, nil
}

// DecodeMessage is the inverse of EncodeMessage.
func DecodeMessage(data []byte) (pkgraft.Message, error) {
	var msg pkgraft.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return pkgraft.Message{}, fmt.Errorf("transport: decode message: %w", err)
	}
	return msg, nil
}
