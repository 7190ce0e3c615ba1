// Package adapter implements the facade (spec §4.1): the single
// application-facing entry point that resolves a session via the registry
// and delegates to the verb-specific component, which talks to the stack,
// builds a response, and hands it to the receive queue.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/browse"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/config"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/discovery"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/eventbus"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/method"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/metrics"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/queue"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/readwrite"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/resilience"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/session"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/stack"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/subscription"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/valuemodel"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/wsmonitor"
)

// Callbacks are the application-facing handlers registered at Configure
// time, per spec §6.1.
type Callbacks struct {
	OnResponse      func(queue.Message)
	OnBrowse        func(queue.Message)
	OnReport        func(queue.Message)
	OnError         func(queue.Message)
	OnStatus        func(endpoint string, status session.Status)
	OnEndpointFound func(stack.ApplicationDescription)
}

// Adapter is the facade. One instance owns every shared resource except
// the subscription serialization lock, which is a package-level mutex in
// internal/subscription shared by every Adapter in the process.
type Adapter struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	breakers *resilience.Breakers
	stack    stack.Stack

	registry *session.Registry
	queue    *queue.Queue
	subs     *subscription.Engine

	eventbusPub   *eventbus.Publisher
	wsBroadcaster *wsmonitor.Broadcaster

	supportedAppTypes stack.ApplicationTypeMask

	mu      sync.Mutex
	servers map[string]stack.Server
}

// New constructs an Adapter from configuration; Configure must be called
// before any other verb.
func New(cfg *config.Config, logger *zap.Logger) *Adapter {
	return &Adapter{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.New(),
		breakers: resilience.New(logger, resilience.Config(cfg.Resilience)),
		stack:    stack.NewGopcuaStack(),
		servers:  make(map[string]stack.Server),
	}
}

// Metrics exposes the adapter's Prometheus registry for the process
// entrypoint to serve on /metrics.
func (a *Adapter) Metrics() *metrics.Metrics { return a.metrics }

// WSMonitor exposes the websocket broadcaster, if enabled, for the process
// entrypoint to mount at /debug/ws.
func (a *Adapter) WSMonitor() *wsmonitor.Broadcaster { return a.wsBroadcaster }

// Configure wires the receive queue, optional mirrors, the session
// registry, and the subscription engine. It is the facade's "configure"
// verb.
func (a *Adapter) Configure(ctx context.Context, cb Callbacks, supportedAppTypes stack.ApplicationTypeMask) error {
	a.supportedAppTypes = supportedAppTypes

	a.queue = queue.New(a.logger, a.cfg.Adapter.RecvQueueSize, queue.Callbacks{
		OnResponse: cb.OnResponse,
		OnBrowse:   cb.OnBrowse,
		OnReport: func(m queue.Message) {
			a.metrics.ReportsDelivered.Inc()
			if cb.OnReport != nil {
				cb.OnReport(m)
			}
		},
		OnError: func(m queue.Message) {
			a.metrics.DispatchErrors.WithLabelValues("general").Inc()
			if cb.OnError != nil {
				cb.OnError(m)
			}
		},
	})

	if a.cfg.Eventbus.Enabled {
		pub, err := eventbus.Connect(eventbus.Config{
			Servers:        a.cfg.Eventbus.Servers,
			Subject:        a.cfg.Eventbus.Subject,
			MaxReconnects:  10,
			ReconnectWait:  2 * time.Second,
			ConnectTimeout: 5 * time.Second,
		}, a.logger, func() { a.metrics.MirrorDropped.WithLabelValues("eventbus").Inc() })
		if err != nil {
			return fmt.Errorf("configure: eventbus: %w", err)
		}
		a.eventbusPub = pub
		a.queue.AddMirror(pub)
	}

	if a.cfg.WSMonitor.Enabled {
		a.wsBroadcaster = wsmonitor.New(a.logger)
		a.queue.AddMirror(a.wsBroadcaster)
	}

	a.queue.Start(ctx)

	a.registry = session.NewRegistry(a.logger, a.stack, a.breakers, func(endpoint string, status session.Status) {
		switch status {
		case session.StatusClientStarted:
			a.metrics.SessionsConnected.Inc()
		case session.StatusStopClient:
			a.metrics.SessionsConnected.Dec()
		}
		if cb.OnStatus != nil {
			cb.OnStatus(endpoint, status)
		}
	})
	a.subs = subscription.New(a.logger, a.breakers, a.queue)

	a.logger.Info("adapter configured",
		zap.Int("recvQueueSize", a.cfg.Adapter.RecvQueueSize),
		zap.Bool("eventbusEnabled", a.cfg.Eventbus.Enabled),
		zap.Bool("wsmonitorEnabled", a.cfg.WSMonitor.Enabled))
	return nil
}

// Close stops the queue and closes the eventbus connection, if any;
// websocket monitor clients are not disconnected. Call after every session
// has been disconnected.
func (a *Adapter) Close() {
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.eventbusPub != nil {
		a.eventbusPub.Close()
	}
}

// CreateServer hosts a namespace at endpointURL (spec §4.8.1).
func (a *Adapter) CreateServer(ctx context.Context, cfg stack.ServerConfig) error {
	srv, err := stack.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("createServer: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("createServer: %w", err)
	}
	a.mu.Lock()
	a.servers[cfg.EndpointURL] = srv
	a.mu.Unlock()
	a.logger.Info("server started", zap.String("endpoint", cfg.EndpointURL))
	return nil
}

// CloseServer tears down a previously created server endpoint.
func (a *Adapter) CloseServer(ctx context.Context, endpointURL string) error {
	a.mu.Lock()
	srv, ok := a.servers[endpointURL]
	if ok {
		delete(a.servers, endpointURL)
	}
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("closeServer: no server for %s", endpointURL)
	}
	if err := srv.Close(ctx); err != nil {
		return fmt.Errorf("closeServer: %w", err)
	}
	a.logger.Info("server stopped", zap.String("endpoint", endpointURL))
	return nil
}

// ConnectClient creates a new session for endpointURL.
func (a *Adapter) ConnectClient(ctx context.Context, endpointURL string) error {
	start := time.Now()
	_, err := a.registry.Connect(ctx, endpointURL)
	a.metrics.ObserveLatency("connect", start)
	if err != nil {
		a.metrics.ConnectAttempts.WithLabelValues("failure").Inc()
		if errors.Is(err, resilience.ErrOpen) {
			a.metrics.BreakerTrips.Inc()
		}
		return fmt.Errorf("connectClient: %w", err)
	}
	a.metrics.ConnectAttempts.WithLabelValues("success").Inc()
	return nil
}

// DisconnectClient tears down the session for endpointURL.
func (a *Adapter) DisconnectClient(ctx context.Context, endpointURL string) error {
	return a.registry.Disconnect(ctx, endpointURL)
}

// GetEndpointInfo returns GetEndpoints' result directly (discovery results
// bypass the queue per spec §4.1).
func (a *Adapter) GetEndpointInfo(ctx context.Context, endpointURL string) ([]stack.EndpointDescription, error) {
	eps, status, err := discovery.GetEndpoints(ctx, a.stack, endpointURL)
	if err != nil || !status.Good() {
		return nil, fmt.Errorf("getEndpointInfo: %w (status %s)", err, status.Name)
	}
	return eps, nil
}

// FindServers resolves discovery servers and returns matches directly.
func (a *Adapter) FindServers(ctx context.Context, discoveryURL string, serverURIs, localeIDs []string) ([]stack.ApplicationDescription, error) {
	servers, status, err := discovery.FindServers(ctx, a.stack, discoveryURL, serverURIs, localeIDs, a.supportedAppTypes)
	if err != nil || !status.Good() {
		return nil, fmt.Errorf("findServers: %w (status %s)", err, status.Name)
	}
	return servers, nil
}

func (a *Adapter) sessionFor(endpointURL string) (*session.Session, error) {
	sess, ok := a.registry.Get(endpointURL)
	if !ok {
		return nil, fmt.Errorf("no session for %s", endpointURL)
	}
	return sess, nil
}

// ReadNode issues a batched read against endpointURL's session.
func (a *Adapter) ReadNode(ctx context.Context, endpointURL string, requests []readwrite.NodeRequest) error {
	a.metrics.ReadRequests.Inc()
	sess, err := a.sessionFor(endpointURL)
	if err != nil {
		return fmt.Errorf("readNode: %w", err)
	}
	start := time.Now()
	defer a.metrics.ObserveLatency("read", start)
	return a.subs.Guard(sess.Key, func() error {
		return readwrite.Read(ctx, sess.Client, a.queue, endpointURL, requests)
	})
}

// WriteNode issues a batched write against endpointURL's session.
func (a *Adapter) WriteNode(ctx context.Context, endpointURL string, requests []readwrite.WriteRequest) error {
	a.metrics.WriteRequests.Inc()
	sess, err := a.sessionFor(endpointURL)
	if err != nil {
		return fmt.Errorf("writeNode: %w", err)
	}
	start := time.Now()
	defer a.metrics.ObserveLatency("write", start)
	return a.subs.Guard(sess.Key, func() error {
		return readwrite.Write(ctx, sess.Client, a.queue, endpointURL, requests)
	})
}

// CallMethod invokes one method on one object.
func (a *Adapter) CallMethod(ctx context.Context, endpointURL string, objectID, methodID valuemodel.NodeID, inputs []valuemodel.Value) error {
	a.metrics.MethodCalls.Inc()
	sess, err := a.sessionFor(endpointURL)
	if err != nil {
		return fmt.Errorf("callMethod: %w", err)
	}
	start := time.Now()
	defer a.metrics.ObserveLatency("call", start)
	return a.subs.Guard(sess.Key, func() error {
		return method.Call(ctx, sess.Client, a.queue, endpointURL, objectID, methodID, inputs)
	})
}

// BrowseNode runs the normal browse variant.
func (a *Adapter) BrowseNode(ctx context.Context, endpointURL string, nodes []browse.StartNode, direction stack.BrowseDirection, maxReferences uint32) error {
	a.metrics.BrowseRequests.Inc()
	sess, err := a.sessionFor(endpointURL)
	if err != nil {
		return fmt.Errorf("browseNode: %w", err)
	}
	start := time.Now()
	defer a.metrics.ObserveLatency("browse", start)
	return a.subs.Guard(sess.Key, func() error {
		return browse.Browse(ctx, sess.Client, a.queue, endpointURL, nodes, direction, maxReferences)
	})
}

// BrowseViews runs the views browse variant, returning the accumulated
// view nodes directly rather than via the queue.
func (a *Adapter) BrowseViews(ctx context.Context, endpointURL string, nodes []browse.StartNode, maxReferences uint32) ([]browse.Result, error) {
	a.metrics.BrowseRequests.Inc()
	sess, err := a.sessionFor(endpointURL)
	if err != nil {
		return nil, fmt.Errorf("browseViews: %w", err)
	}
	start := time.Now()
	defer a.metrics.ObserveLatency("browseViews", start)
	var results []browse.Result
	err = a.subs.Guard(sess.Key, func() error {
		var guardErr error
		results, guardErr = browse.BrowseViews(ctx, sess.Client, a.queue, endpointURL, nodes, maxReferences)
		return guardErr
	})
	return results, err
}

// BrowseNext resumes one or more truncated browses.
func (a *Adapter) BrowseNext(ctx context.Context, endpointURL string, requests []browse.ContinuationRequest, direction stack.BrowseDirection) error {
	a.metrics.BrowseRequests.Inc()
	sess, err := a.sessionFor(endpointURL)
	if err != nil {
		return fmt.Errorf("browseNext: %w", err)
	}
	start := time.Now()
	defer a.metrics.ObserveLatency("browseNext", start)
	return a.subs.Guard(sess.Key, func() error {
		return browse.BrowseNext(ctx, sess.Client, a.queue, endpointURL, requests, direction)
	})
}

// SubscriptionCommand names which subscription operation HandleSubscription
// performs.
type SubscriptionCommand int

const (
	SubscriptionCreate SubscriptionCommand = iota
	SubscriptionModify
	SubscriptionDelete
	SubscriptionRepublish
)

// SubscriptionRequest carries the arguments for one HandleSubscription
// call; only the fields relevant to Command are read.
type SubscriptionRequest struct {
	Command           SubscriptionCommand
	Nodes             []subscription.NodeSubscription
	Parameters        stack.SubscriptionParameters
	ValueAlias        string
	SamplingInterval  float64
	QueueSize         uint32
	PublishingEnabled bool
	SubscriptionID    uint32
}

// HandleSubscription dispatches to Edge_Create_Sub / Edge_Modify_Sub /
// Edge_Delete_Sub / Edge_Republish_Sub per the request's Command.
func (a *Adapter) HandleSubscription(ctx context.Context, endpointURL string, req SubscriptionRequest) error {
	sess, err := a.sessionFor(endpointURL)
	if err != nil {
		return fmt.Errorf("handleSubscription: %w", err)
	}

	switch req.Command {
	case SubscriptionCreate:
		if err := a.subs.CreateSubscription(ctx, sess, endpointURL, req.Nodes, req.Parameters); err != nil {
			return fmt.Errorf("handleSubscription: create: %w", err)
		}
		a.metrics.SubscriptionsActive.Add(float64(len(req.Nodes)))
	case SubscriptionModify:
		if err := a.subs.ModifySubscription(ctx, sess, req.ValueAlias, req.Parameters, req.SamplingInterval, req.QueueSize, req.PublishingEnabled); err != nil {
			return fmt.Errorf("handleSubscription: modify: %w", err)
		}
	case SubscriptionDelete:
		if err := a.subs.DeleteSubscription(ctx, sess, req.ValueAlias); err != nil {
			return fmt.Errorf("handleSubscription: delete: %w", err)
		}
		a.metrics.SubscriptionsActive.Dec()
	case SubscriptionRepublish:
		if err := a.subs.RepublishSubscription(ctx, sess, req.SubscriptionID); err != nil {
			return fmt.Errorf("handleSubscription: republish: %w", err)
		}
	default:
		return fmt.Errorf("handleSubscription: unknown command %v", req.Command)
	}
	return nil
}
