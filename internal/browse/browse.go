// Package browse implements the recursive, depth-first browse engine
// (component G, spec §4.7): browse-path stack, cycle cut, continuation
// points, reference validation, and the value-alias computation of §4.7.1.
package browse

import (
	"context"
	"fmt"
	"strings"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/queue"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/stack"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/valuemodel"
)

// maxStartNodes caps a single multi-node browse request; exceeding it is a
// terminal error rather than a silent truncation.
const maxStartNodes = 10

const maxNameLength = 1000
const maxContinuationPointLength = 1000

// defaultNodeClassMask accepts Object, Variable, Method, View — the normal
// browse variant's mask.
const defaultNodeClassMask = stack.NodeClassObject | stack.NodeClassVariable | stack.NodeClassMethod | stack.NodeClassView

// viewsNodeClassMask is the mask used by the views browse variant.
const viewsNodeClassMask = stack.NodeClassObject | stack.NodeClassView

// StartNode names one browse root: the node to browse from, and the
// browseName under which it was reached (used for path-stack bookkeeping
// and the cycle cut).
type StartNode struct {
	NodeID     valuemodel.NodeID
	BrowseName string
}

// Result is one accepted, validated reference, ready for delivery.
type Result struct {
	ValueAlias      string
	BrowsePath      string
	ReferenceTypeID valuemodel.NodeID
	IsForward       bool
	TargetNodeID    valuemodel.NodeID
	BrowseName      string
	DisplayName     string
	NodeClass       stack.NodeClass
	TypeDefinition  valuemodel.NodeID
}

// ContinuationResult carries a continuation point and the browse-path
// prefix under which it was issued, delivered alongside the level's
// accepted references when a result was truncated.
type ContinuationResult struct {
	ContinuationPoint []byte
	BrowsePathPrefix  string
}

// ContinuationRequest resumes one previously truncated browse.
type ContinuationRequest struct {
	ContinuationPoint []byte
	PathPrefix        []Frame
}

// Frame is one entry on the browse-path stack.
type Frame struct {
	NodeID     valuemodel.NodeID
	BrowseName string
}

func fromStackNodeID(n stack.NodeID) valuemodel.NodeID {
	return valuemodel.NodeID{
		Namespace:      n.Namespace,
		IdentifierType: valuemodel.IdentifierType(n.IdentifierType),
		Numeric:        n.Numeric,
		Text:           n.Text,
		Bytes:          n.Bytes,
	}
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

type engine struct {
	client        stack.Client
	q             *queue.Queue
	endpoint      string
	direction     stack.BrowseDirection
	nodeClassMask stack.NodeClass

	views *[]Result // non-nil only for the views variant
}

func joinPath(frames []Frame) string {
	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = f.BrowseName
	}
	return strings.Join(names, "/")
}

func onStack(frames []Frame, name string) bool {
	for _, f := range frames {
		if f.BrowseName == name {
			return true
		}
	}
	return false
}

// valueAlias implements §4.7.1.
func valueAlias(target valuemodel.NodeID, browseName, displayNameText string) string {
	if target.IdentifierType == valuemodel.IdentifierString {
		n := "0"
		if strings.HasPrefix(displayNameText, "v=") {
			n = strings.TrimPrefix(displayNameText, "v=")
		}
		return fmt.Sprintf("{%d;S;v=%s}%s", target.Namespace, n, browseName)
	}

	var typeChar string
	switch target.IdentifierType {
	case valuemodel.IdentifierNumeric:
		typeChar = "I"
	case valuemodel.IdentifierByteString:
		typeChar = "B"
	case valuemodel.IdentifierGUID:
		typeChar = "G"
	}
	return fmt.Sprintf("{%d;%s}%s", target.Namespace, typeChar, browseName)
}

func validateReference(direction stack.BrowseDirection, mask stack.NodeClass, ref stack.ReferenceDescription) error {
	switch direction {
	case stack.BrowseDirectionForward:
		if !ref.IsForward {
			return fmt.Errorf("direction mismatch: inverse reference under FORWARD")
		}
	case stack.BrowseDirectionInverse:
		if ref.IsForward {
			return fmt.Errorf("direction mismatch: forward reference under INVERSE")
		}
	}

	if ref.BrowseName.Name == "" || len(ref.BrowseName.Name) >= maxNameLength {
		return fmt.Errorf("invalid browseName length")
	}
	if ref.NodeClass&mask == 0 {
		return fmt.Errorf("nodeClass %v outside requested mask", ref.NodeClass)
	}
	if ref.DisplayName.Text == "" || len(ref.DisplayName.Text) >= maxNameLength {
		return fmt.Errorf("invalid displayName length")
	}
	if isNullNodeID(ref.TargetNodeID) || ref.ServerIndex != 0 {
		return fmt.Errorf("invalid target nodeId or non-local serverIndex")
	}
	if isNullNodeID(ref.ReferenceTypeID) {
		return fmt.Errorf("invalid referenceTypeId")
	}
	if (ref.NodeClass == stack.NodeClassObject || ref.NodeClass == stack.NodeClassVariable) && isNullNodeID(ref.TypeDefinition) {
		return fmt.Errorf("invalid typeDefinition for Object/Variable")
	}
	return nil
}

func isNullNodeID(n stack.NodeID) bool {
	return n.IdentifierType == stack.IdentifierNumeric && n.Numeric == 0 && n.Namespace == 0
}

// Browse runs the normal browse variant over the given start nodes.
func Browse(ctx context.Context, client stack.Client, q *queue.Queue, endpoint string, nodes []StartNode, direction stack.BrowseDirection, maxReferences uint32) error {
	if len(nodes) == 0 {
		return fmt.Errorf("browse: requestLength must be >= 1")
	}
	if len(nodes) > maxStartNodes {
		q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("browse: %d start nodes exceeds cap of %d", len(nodes), maxStartNodes)})
		return nil
	}
	e := &engine{client: client, q: q, endpoint: endpoint, direction: direction, nodeClassMask: defaultNodeClassMask}
	return e.runLevel(ctx, nil, nodes, maxReferences)
}

// BrowseViews runs the views variant: the node-class mask is {Object,
// View}, and view nodes encountered are accumulated into the returned
// slice rather than delivered individually via the queue.
func BrowseViews(ctx context.Context, client stack.Client, q *queue.Queue, endpoint string, nodes []StartNode, maxReferences uint32) ([]Result, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("browse: requestLength must be >= 1")
	}
	if len(nodes) > maxStartNodes {
		q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("browse: %d start nodes exceeds cap of %d", len(nodes), maxStartNodes)})
		return nil, nil
	}
	var out []Result
	e := &engine{client: client, q: q, endpoint: endpoint, direction: stack.BrowseDirectionForward, nodeClassMask: viewsNodeClassMask, views: &out}
	if err := e.runLevel(ctx, nil, nodes, maxReferences); err != nil {
		return nil, err
	}
	return out, nil
}

// BrowseNext resumes one or more previously truncated browses.
func BrowseNext(ctx context.Context, client stack.Client, q *queue.Queue, endpoint string, requests []ContinuationRequest, direction stack.BrowseDirection) error {
	if len(requests) == 0 {
		return fmt.Errorf("browseNext: requestLength must be >= 1")
	}
	e := &engine{client: client, q: q, endpoint: endpoint, direction: direction, nodeClassMask: defaultNodeClassMask}

	cps := make([][]byte, len(requests))
	for i, r := range requests {
		cps[i] = r.ContinuationPoint
	}
	results, status, err := client.BrowseNext(ctx, cps)
	if err != nil || !status.Good() {
		q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("browseNext: %v", err)})
		return nil
	}
	for i, res := range results {
		if i >= len(requests) {
			break
		}
		if err := e.handleResult(ctx, requests[i].PathPrefix, res); err != nil {
			return err
		}
	}
	return nil
}

func (e *engine) runLevel(ctx context.Context, pathStack []Frame, level []StartNode, maxReferences uint32) error {
	for start := 0; start < len(level); start += maxStartNodes {
		end := start + maxStartNodes
		if end > len(level) {
			end = len(level)
		}
		chunk := level[start:end]

		descs := make([]stack.BrowseDescription, len(chunk))
		for i, n := range chunk {
			descs[i] = stack.BrowseDescription{
				NodeID:        toStackNodeID(n.NodeID),
				Direction:     e.direction,
				NodeClassMask: e.nodeClassMask,
				MaxReferences: maxReferences,
			}
		}

		results, status, err := e.client.Browse(ctx, descs)
		if err != nil || !status.Good() {
			e.q.Enqueue(queue.Message{Type: queue.Error, Endpoint: e.endpoint, Payload: fmt.Sprintf("browse: %v", err)})
			return nil
		}

		for i, res := range results {
			if i >= len(chunk) {
				break
			}
			frame := Frame{NodeID: chunk[i].NodeID, BrowseName: chunk[i].BrowseName}
			newStack := append(append([]Frame{}, pathStack...), frame)
			if err := e.handleResult(ctx, newStack, res); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *engine) handleResult(ctx context.Context, pathStack []Frame, res stack.BrowseResult) error {
	if len(pathStack) == 0 {
		return fmt.Errorf("browse: internal error: empty path stack")
	}

	if res.Status == stack.StatusBadNodeIDUnknown {
		e.q.Enqueue(queue.Message{Type: queue.Error, Endpoint: e.endpoint, Payload: fmt.Sprintf("VIEW_NODEID_UNKNOWN_ALL_RESULTS: %s", joinPath(pathStack))})
		return nil
	}

	cpValid := len(res.ContinuationPoint) < maxContinuationPointLength && (len(res.ContinuationPoint) == 0 || len(res.References) > 0)
	if !cpValid {
		e.q.Enqueue(queue.Message{Type: queue.Error, Endpoint: e.endpoint, Payload: fmt.Sprintf("browse: invalid continuation point at %s", joinPath(pathStack))})
	}

	var accepted []stack.ReferenceDescription
	for _, ref := range res.References {
		if verr := validateReference(e.direction, e.nodeClassMask, ref); verr != nil {
			e.q.Enqueue(queue.Message{Type: queue.Error, Endpoint: e.endpoint, Payload: fmt.Sprintf("browse: reference %s rejected: %v", ref.BrowseName.Name, verr)})
			continue
		}
		if onStack(pathStack, ref.BrowseName.Name) {
			continue
		}
		accepted = append(accepted, ref)

		target := fromStackNodeID(ref.TargetNodeID)
		result := Result{
			ValueAlias:      valueAlias(target, ref.BrowseName.Name, ref.DisplayName.Text),
			BrowsePath:      joinPath(pathStack),
			ReferenceTypeID: fromStackNodeID(ref.ReferenceTypeID),
			IsForward:       ref.IsForward,
			TargetNodeID:    target,
			BrowseName:      ref.BrowseName.Name,
			DisplayName:     ref.DisplayName.Text,
			NodeClass:       ref.NodeClass,
			TypeDefinition:  fromStackNodeID(ref.TypeDefinition),
		}

		if e.views != nil {
			if ref.NodeClass == stack.NodeClassView {
				*e.views = append(*e.views, result)
			}
			continue
		}
		e.q.Enqueue(queue.Message{Type: queue.BrowseResponse, Endpoint: e.endpoint, Payload: result})
	}

	if cpValid && len(res.ContinuationPoint) > 0 && e.views == nil {
		e.q.Enqueue(queue.Message{Type: queue.BrowseResponse, Endpoint: e.endpoint, Payload: ContinuationResult{
			ContinuationPoint: res.ContinuationPoint,
			BrowsePathPrefix:  joinPath(pathStack),
		}})
	}

	var nextLevel []StartNode
	for _, ref := range accepted {
		if ref.NodeClass == stack.NodeClassVariable {
			continue
		}
		nextLevel = append(nextLevel, StartNode{NodeID: fromStackNodeID(ref.TargetNodeID), BrowseName: ref.BrowseName.Name})
	}
	if len(nextLevel) > 0 {
		return e.runLevel(ctx, pathStack, nextLevel, 0)
	}
	return nil
}
