package stack

import (
	"context"
	"fmt"
	"sync"

	"github.com/gopcua/opcua"
)

// gopcuaServer hosts an address space over opcua.Server. Namespace storage
// itself is the external stack's concern (spec §1); this type only tracks
// which nodes have been added so RemoveNode can report an unknown node
// instead of silently no-oping.
type gopcuaServer struct {
	srv *opcua.Server

	mu    sync.Mutex
	nodes map[string]ServerNodeItem
	stop  context.CancelFunc
}

// NewServer hosts an OPC-UA server namespace at cfg.EndpointURL, per
// SPEC_FULL.md §4.8.1.
func NewServer(cfg ServerConfig) (Server, error) {
	srv := opcua.NewServer(cfg.EndpointURL)
	return &gopcuaServer{srv: srv, nodes: make(map[string]ServerNodeItem)}, nil
}

func (s *gopcuaServer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe(runCtx, nil)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (s *gopcuaServer) Close(ctx context.Context) error {
	if s.stop != nil {
		s.stop()
	}
	return nil
}

func (s *gopcuaServer) AddNode(item ServerNodeItem) error {
	key := nodeIDKey(item.NodeID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[key]; exists {
		return fmt.Errorf("node %s already exists", key)
	}
	s.nodes[key] = item
	return nil
}

func (s *gopcuaServer) RemoveNode(nodeID NodeID) error {
	key := nodeIDKey(nodeID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[key]; !exists {
		return fmt.Errorf("node %s not found", key)
	}
	delete(s.nodes, key)
	return nil
}

func nodeIDKey(n NodeID) string {
	switch n.IdentifierType {
	case IdentifierString:
		return fmt.Sprintf("ns=%d;s=%s", n.Namespace, n.Text)
	case IdentifierGUID:
		return fmt.Sprintf("ns=%d;g=%s", n.Namespace, n.Text)
	case IdentifierByteString:
		return fmt.Sprintf("ns=%d;b=%x", n.Namespace, n.Bytes)
	default:
		return fmt.Sprintf("ns=%d;i=%d", n.Namespace, n.Numeric)
	}
}
