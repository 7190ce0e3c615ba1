// Package readwrite implements batched read/write dispatch with per-node
// error isolation (component E, spec §4.5).
package readwrite

import (
	"context"
	"fmt"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/queue"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/stack"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/valuemodel"
)

// NodeRequest names one node to read, with the attribute to address.
type NodeRequest struct {
	NodeID      valuemodel.NodeID
	AttributeID uint32
}

// NodeResult is one decoded read result.
type NodeResult struct {
	NodeID valuemodel.NodeID
	Value  valuemodel.Value
}

func toStackNodeID(n valuemodel.NodeID) stack.NodeID {
	return stack.NodeID{
		Namespace:      n.Namespace,
		IdentifierType: stack.IdentifierType(n.IdentifierType),
		Numeric:        n.Numeric,
		Text:           n.Text,
		Bytes:          n.Bytes,
	}
}

// Read issues one batched read call and enqueues the results, with
// per-node error isolation per spec §4.5.
//
// If the overall service result is bad, a single ERROR is enqueued and the
// function returns. Otherwise each per-node bad status becomes a
// position-tagged ERROR; when multiple nodes were requested the good
// results still get one aggregated GeneralResponse, but a single bad node
// among a single-node request stops there with only the ERROR enqueued.
func Read(ctx context.Context, client stack.Client, q *queue.Queue, endpoint string, requests []NodeRequest) error {
	if len(requests) == 0 {
		return fmt.Errorf("read: requestLength must be >= 1")
	}

	nodes := make([]stack.ReadValueID, len(requests))
	for i, r := range requests {
		nodes[i] = stack.ReadValueID{NodeID: toStackNodeID(r.NodeID), AttributeID: r.AttributeID}
	}

	values, status, err := client.Read(ctx, nodes)
	if err != nil || !status.Good() {
		q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("read: transport/service error: %v", err)})
		return nil
	}

	var results []NodeResult
	for i, dv := range values {
		if !dv.Status.Good() {
			q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("read: position(%d): %s", i, dv.Status.Name)})
			if len(requests) == 1 {
				return nil
			}
			continue
		}
		v, decodeErr := valuemodel.Decode(dv.Value)
		if decodeErr != nil {
			q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("read: position(%d): %v", i, decodeErr)})
			if len(requests) == 1 {
				return nil
			}
			continue
		}
		results = append(results, NodeResult{NodeID: requests[i].NodeID, Value: v})
	}

	if len(results) == 0 {
		q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: "read: no valid responses"})
		return nil
	}
	q.Enqueue(queue.Message{Type: queue.GeneralResponse, Endpoint: endpoint, Payload: results})
	return nil
}

// WriteRequest names one node/attribute/value triple to write.
type WriteRequest struct {
	NodeID      valuemodel.NodeID
	AttributeID uint32
	Value       valuemodel.Value
}

// Write mirrors Read's batching and per-node isolation rules.
func Write(ctx context.Context, client stack.Client, q *queue.Queue, endpoint string, requests []WriteRequest) error {
	if len(requests) == 0 {
		return fmt.Errorf("write: requestLength must be >= 1")
	}

	values := make([]stack.WriteValue, len(requests))
	for i, r := range requests {
		variant, err := valuemodel.Encode(r.Value)
		if err != nil {
			q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("write: position(%d): %v", i, err)})
			return nil
		}
		values[i] = stack.WriteValue{
			NodeID:      toStackNodeID(r.NodeID),
			AttributeID: r.AttributeID,
			Value:       stack.DataValue{Value: variant},
		}
	}

	statuses, status, err := client.Write(ctx, values)
	if err != nil || !status.Good() {
		q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("write: transport/service error: %v", err)})
		return nil
	}

	var goodPositions []int
	for i, s := range statuses {
		if !s.Good() {
			q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("write: position(%d): %s", i, s.Name)})
			if len(requests) == 1 {
				return nil
			}
			continue
		}
		goodPositions = append(goodPositions, i)
	}

	if len(goodPositions) == 0 {
		q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: "write: no valid responses"})
		return nil
	}
	q.Enqueue(queue.Message{Type: queue.GeneralResponse, Endpoint: endpoint, Payload: goodPositions})
	return nil
}
