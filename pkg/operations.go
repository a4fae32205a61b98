package pkg

import (
	"encoding/json"
	"fmt"
)

// Operation is the replicated mutation carried inside a broadcast envelope.
type Operation struct {
	CRDT    string          `json:"crdt"`
	Kind    string          `json:"kind"`
	Element json.RawMessage `json:"element"`
}

func (o Operation) String() string {
	return fmt.Sprintf("%s[%s] += %s", o.CRDT, o.Kind, string(o.Element))
}

func ParseOperation(data []byte) (Operation, error) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return Operation{}, fmt.Errorf("unable to parse operation: %w", err)
	}
	if op.CRDT == "" || op.Kind == "" {
		return Operation{}, fmt.Errorf("unable to parse operation: missing crdt name or kind")
	}

	return op, nil
}
