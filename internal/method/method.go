// Package method implements one-request-one-method-one-object calls
// (component F, spec §4.6): typed input/output arguments via
// internal/valuemodel, delivered as a single GeneralResponse or ERROR.
package method

import (
	"context"
	"fmt"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/queue"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/stack"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/valuemodel"
)

func toStackNodeID(n valuemodel.NodeID) stack.NodeID {
	return stack.NodeID{
		Namespace:      n.Namespace,
		IdentifierType: stack.IdentifierType(n.IdentifierType),
		Numeric:        n.Numeric,
		Text:           n.Text,
		Bytes:          n.Bytes,
	}
}

// Call invokes one method on one object with the given input arguments and
// enqueues exactly one message: a GeneralResponse carrying the decoded
// output arguments on success, or a single ERROR on any failure: it names
// the stack's status string for a bad call status, and carries the error
// text for an input encode, transport, or output decode failure.
func Call(ctx context.Context, client stack.Client, q *queue.Queue, endpoint string, objectID, methodID valuemodel.NodeID, inputs []valuemodel.Value) error {
	args := make([]stack.Argument, len(inputs))
	for i, in := range inputs {
		variant, err := valuemodel.Encode(in)
		if err != nil {
			q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("call: input argument(%d): %v", i, err)})
			return nil
		}
		args[i] = stack.Argument{Value: variant}
	}

	outputs, status, err := client.CallMethod(ctx, toStackNodeID(objectID), toStackNodeID(methodID), args)
	if err != nil {
		q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("call: transport error: %v", err)})
		return nil
	}
	if !status.Good() {
		q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("call: %s", status.Name)})
		return nil
	}

	results := make([]valuemodel.Value, len(outputs))
	for i, out := range outputs {
		v, decodeErr := valuemodel.Decode(out.Value)
		if decodeErr != nil {
			q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("call: output argument(%d): %v", i, decodeErr)})
			return nil
		}
		results[i] = v
	}

	q.Enqueue(queue.Message{Type: queue.GeneralResponse, Endpoint: endpoint, Payload: results})
	return nil
}
