package rule

import (
	"fmt"

	"github.com/epalmerini/soundcheck/internal/protodec"
)

type protoRule struct {
	name     string
	typeName string
	dec      *protodec.Decoder
}

// ProtoDecodes builds a rule requiring the payload to decode as the named
// protobuf message type, resolved from the .proto files under protoDir.
// Unknown type names fail at construction, not at evaluation.
func ProtoDecodes(protoDir, typeName string) (Rule, error) {
	dec, err := protodec.New(protoDir)
	if err != nil {
		return nil, fmt.Errorf("load proto dir: %w", err)
	}
	if !dec.HasType(typeName) {
		return nil, fmt.Errorf("unknown message type %s in %s", typeName, protoDir)
	}
	return &protoRule{
		name:     "proto:" + typeName,
		typeName: typeName,
		dec:      dec,
	}, nil
}

func (r *protoRule) Name() string { return r.name }

func (r *protoRule) Check(payload []byte) error {
	if _, err := r.dec.DecodeAs(payload, r.typeName); err != nil {
		return fmt.Errorf("payload does not decode as %s: %w", r.typeName, err)
	}
	return nil
}
