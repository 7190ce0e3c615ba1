// Package subscription implements the subscription engine (component H,
// spec §4.8): per-session subscription/monitored-item bookkeeping keyed by
// value alias, the publish pump, and data-change delivery.
package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/queue"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/resilience"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/session"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/stack"
	"github.com/bifrost-automation/opcua-edge-adapter/internal/valuemodel"
)

// pumpLock is the process-wide serialization lock of spec §5: any
// subsystem issuing a call while subscriptions exist takes this lock
// around that call, so requests never race with a session's publish pump.
var pumpLock sync.Mutex

// PumpTick is the publish pump's loop granularity (spec §4.8 "Publish pump").
const PumpTick = 5 * time.Millisecond

// NodeSubscription requests monitoring of one node attribute under a
// caller-assigned value alias.
type NodeSubscription struct {
	ValueAlias       string
	NodeID           valuemodel.NodeID
	AttributeID      uint32
	SamplingInterval float64
	QueueSize        uint32
	DiscardOldest    bool
}

// Report is the decoded payload of one data-change delivery.
type Report struct {
	ValueAlias           string
	Value                valuemodel.Value
	IsScalar             bool
	TimestampUnixSeconds int64
	TimestampMicros      int64
}

var (
	// ErrDuplicateAliasInRequest is returned when a single create request
	// names the same value alias twice — spec boundary scenario 5.
	ErrDuplicateAliasInRequest = fmt.Errorf("subscription: duplicate valueAlias within request")
	// ErrAlreadySubscribed is returned when a value alias is already
	// subscribed on the session.
	ErrAlreadySubscribed = fmt.Errorf("subscription: valueAlias already subscribed")
	// ErrSubscriptionIDCollision is returned when the stack hands back a
	// subscription ID already tracked for this session.
	ErrSubscriptionIDCollision = fmt.Errorf("subscription: subscriptionId collision")
	ErrUnknownAlias            = fmt.Errorf("subscription: unknown valueAlias")
)

type record struct {
	subscriptionID  uint32
	monitoredItemID uint32
	valueAlias      string
	nodeID          valuemodel.NodeID
	attributeID     uint32
}

type sessionSubs struct {
	mu        sync.Mutex
	records   map[string]*record // by valueAlias
	subCounts map[uint32]int     // subscriptionID -> live record count
	pump      *pump
}

// Engine tracks subscription state per session and drives the publish
// pump lifecycle.
type Engine struct {
	logger   *zap.Logger
	breakers *resilience.Breakers
	q        *queue.Queue

	mu       sync.Mutex
	sessions map[string]*sessionSubs
}

// New creates an empty subscription engine.
func New(logger *zap.Logger, breakers *resilience.Breakers, q *queue.Queue) *Engine {
	return &Engine{logger: logger, breakers: breakers, q: q, sessions: make(map[string]*sessionSubs)}
}

func (e *Engine) subsFor(key string) *sessionSubs {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[key]
	if !ok {
		s = &sessionSubs{records: make(map[string]*record), subCounts: make(map[uint32]int)}
		e.sessions[key] = s
	}
	return s
}

// CreateSubscription implements Edge_Create_Sub.
func (e *Engine) CreateSubscription(ctx context.Context, sess *session.Session, endpoint string, nodes []NodeSubscription, params stack.SubscriptionParameters) error {
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if seen[n.ValueAlias] {
			return ErrDuplicateAliasInRequest
		}
		seen[n.ValueAlias] = true
	}

	subs := e.subsFor(sess.Key)
	subs.mu.Lock()
	for _, n := range nodes {
		if _, exists := subs.records[n.ValueAlias]; exists {
			subs.mu.Unlock()
			return ErrAlreadySubscribed
		}
	}
	wasEmpty := len(subs.records) == 0
	subs.mu.Unlock()

	pumpLock.Lock()
	subID, status, err := sess.Client.SubscriptionsCreate(ctx, params)
	pumpLock.Unlock()
	if err != nil || !status.Good() {
		return fmt.Errorf("subscriptionsCreate: %w (status %s)", err, status.Name)
	}

	subs.mu.Lock()
	if count, exists := subs.subCounts[subID]; exists && count > 0 {
		subs.mu.Unlock()
		return ErrSubscriptionIDCollision
	}
	subs.mu.Unlock()

	for i, n := range nodes {
		cb := e.makeCallback(endpoint, n.ValueAlias)
		pumpLock.Lock()
		result, err := sess.Client.MonitoredItemsCreateDataChange(ctx, subID, stack.MonitoredItemCreateRequest{
			NodeID:      toStackNodeID(n.NodeID),
			AttributeID: n.AttributeID,
			Parameters: stack.MonitoringParameters{
				ClientHandle:     uint32(i + 1),
				SamplingInterval: n.SamplingInterval,
				QueueSize:        n.QueueSize,
				DiscardOldest:    n.DiscardOldest,
			},
		}, cb)
		pumpLock.Unlock()
		if err != nil || !result.Status.Good() {
			e.logger.Warn("monitored item create failed, item not recorded",
				zap.String("valueAlias", n.ValueAlias), zap.Error(err))
			continue
		}

		subs.mu.Lock()
		subs.records[n.ValueAlias] = &record{
			subscriptionID:  subID,
			monitoredItemID: result.MonitoredItemID,
			valueAlias:      n.ValueAlias,
			nodeID:          n.NodeID,
			attributeID:     n.AttributeID,
		}
		subs.subCounts[subID]++
		subs.mu.Unlock()
	}

	if wasEmpty {
		subs.mu.Lock()
		hasRecords := len(subs.records) > 0
		subs.mu.Unlock()
		if hasRecords {
			subs.mu.Lock()
			subs.pump = newPump(sess.Client, e.breakers, sess.Key, e.logger)
			subs.mu.Unlock()
			sess.AttachPump(subs.pump)
		}
	}
	return nil
}

// ModifySubscription implements Edge_Modify_Sub.
func (e *Engine) ModifySubscription(ctx context.Context, sess *session.Session, valueAlias string, params stack.SubscriptionParameters, samplingInterval float64, queueSize uint32, enabled bool) error {
	subs := e.subsFor(sess.Key)
	subs.mu.Lock()
	rec, ok := subs.records[valueAlias]
	subs.mu.Unlock()
	if !ok {
		return ErrUnknownAlias
	}

	pumpLock.Lock()
	defer pumpLock.Unlock()

	if status, err := sess.Client.SubscriptionsModify(ctx, rec.subscriptionID, params); err != nil || !status.Good() {
		return fmt.Errorf("subscriptionsModify: %w (status %s)", err, status.Name)
	}

	result, err := sess.Client.MonitoredItemsModify(ctx, rec.subscriptionID, rec.monitoredItemID, stack.MonitoringParameters{
		ClientHandle:     1,
		SamplingInterval: samplingInterval,
		QueueSize:        queueSize,
		DiscardOldest:    true,
	})
	if err != nil || !result.Status.Good() {
		return fmt.Errorf("monitoredItemsModify: %w", err)
	}

	if status, err := sess.Client.SetMonitoringMode(ctx, rec.subscriptionID, rec.monitoredItemID, true); err != nil || !status.Good() {
		return fmt.Errorf("setMonitoringMode: %w (status %s)", err, status.Name)
	}
	if status, err := sess.Client.SetPublishingMode(ctx, rec.subscriptionID, enabled); err != nil || !status.Good() {
		return fmt.Errorf("setPublishingMode: %w (status %s)", err, status.Name)
	}
	return nil
}

// DeleteSubscription implements Edge_Delete_Sub.
func (e *Engine) DeleteSubscription(ctx context.Context, sess *session.Session, valueAlias string) error {
	subs := e.subsFor(sess.Key)
	subs.mu.Lock()
	rec, ok := subs.records[valueAlias]
	if !ok {
		subs.mu.Unlock()
		return ErrUnknownAlias
	}
	subs.mu.Unlock()

	pumpLock.Lock()
	_, err := sess.Client.MonitoredItemsDeleteSingle(ctx, rec.subscriptionID, rec.monitoredItemID)
	pumpLock.Unlock()
	if err != nil {
		e.logger.Warn("monitored item delete failed", zap.String("valueAlias", valueAlias), zap.Error(err))
	}

	subs.mu.Lock()
	delete(subs.records, valueAlias)
	subs.subCounts[rec.subscriptionID]--
	lastForSub := subs.subCounts[rec.subscriptionID] <= 0
	if lastForSub {
		delete(subs.subCounts, rec.subscriptionID)
	}
	sessionEmpty := len(subs.records) == 0
	pump := subs.pump
	subs.mu.Unlock()

	if lastForSub {
		pumpLock.Lock()
		_, err := sess.Client.SubscriptionsDeleteSingle(ctx, rec.subscriptionID)
		pumpLock.Unlock()
		if err != nil {
			e.logger.Warn("subscription delete failed", zap.Uint32("subscriptionId", rec.subscriptionID), zap.Error(err))
		}
	}

	if sessionEmpty && pump != nil {
		pump.Stop()
		pump.Join()
		subs.mu.Lock()
		subs.pump = nil
		subs.mu.Unlock()
	}
	return nil
}

// RepublishSubscription implements Edge_Republish_Sub.
func (e *Engine) RepublishSubscription(ctx context.Context, sess *session.Session, subscriptionID uint32) error {
	pumpLock.Lock()
	status, err := sess.Client.Republish(ctx, subscriptionID, 2)
	pumpLock.Unlock()
	if err != nil {
		return fmt.Errorf("republish: %w", err)
	}
	if status.Raw == stack.StatusBadMessageNotAvailable.Raw {
		e.logger.Info("republish: no message available", zap.Uint32("subscriptionId", subscriptionID))
		return nil
	}
	if !status.Good() {
		return fmt.Errorf("republish: %s", status.Name)
	}
	return nil
}

// SubscriptionCount returns the number of live value-alias records for the
// session, for test and diagnostic use.
func (e *Engine) SubscriptionCount(sessionKey string) int {
	subs := e.subsFor(sessionKey)
	subs.mu.Lock()
	defer subs.mu.Unlock()
	return len(subs.records)
}

// Guard runs fn under the publish-pump serialization lock when sessionKey
// currently has at least one active subscription, so a read/write/browse/
// method call never races with that session's RunAsync tick (spec §5). A
// session with no subscriptions runs fn directly — there is no pump to
// race with.
func (e *Engine) Guard(sessionKey string, fn func() error) error {
	if e.SubscriptionCount(sessionKey) == 0 {
		return fn()
	}
	pumpLock.Lock()
	defer pumpLock.Unlock()
	return fn()
}

func (e *Engine) makeCallback(endpoint, valueAlias string) stack.DataChangeCallback {
	return func(subscriptionID, monitoredItemID uint32, dv stack.DataValue, isScalar bool) {
		v, err := valuemodel.Decode(dv.Value)
		if err != nil {
			e.q.Enqueue(queue.Message{Type: queue.Error, Endpoint: endpoint, Payload: fmt.Sprintf("subscription: decode %s: %v", valueAlias, err)})
			return
		}

		ts := dv.ServerTimestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		e.q.Enqueue(queue.Message{Type: queue.Report, Endpoint: endpoint, Payload: Report{
			ValueAlias:           valueAlias,
			Value:                v,
			IsScalar:             isScalar,
			TimestampUnixSeconds: ts.Unix(),
			TimestampMicros:      int64(ts.Nanosecond() / 1000),
		}})
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

// pump is the per-session publish pump goroutine. It implements
// session.PumpController (Stop/Join) structurally — this package imports
// session to call AttachPump, but session never imports subscription.
type pump struct {
	client     stack.Client
	breakers   *resilience.Breakers
	sessionKey string
	logger     *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newPump(client stack.Client, breakers *resilience.Breakers, sessionKey string, logger *zap.Logger) *pump {
	p := &pump{
		client:     client,
		breakers:   breakers,
		sessionKey: sessionKey,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *pump) run() {
	defer close(p.doneCh)
	ctx := context.Background()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		pumpLock.Lock()
		err := p.breakers.Execute(p.sessionKey, func() error {
			return p.client.RunAsync(ctx, PumpTick)
		})
		pumpLock.Unlock()
		if err != nil {
			p.logger.Warn("publish pump tick failed", zap.String("session", p.sessionKey), zap.Error(err))
		}
		time.Sleep(PumpTick)
	}
}

// Stop signals the pump to exit after its current tick. Idempotent.
func (p *pump) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Join blocks until the pump goroutine has exited.
func (p *pump) Join() {
	<-p.doneCh
}
