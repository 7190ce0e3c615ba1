package stack

import (
	"context"
	"time"
)

// Stack is the narrow set of OPC-UA services the adapter consumes (spec
// §6.2). It is satisfied by gopcuaStack in this package; tests substitute a
// fake. Every call returns a per-service StatusCode; callers treat
// StatusOK.Good() as success and inspect per-item statuses inside the
// result for batched calls.
type Stack interface {
	// ParseEndpointURL splits an endpoint URL into its canonical
	// host:port session key and the path component.
	ParseEndpointURL(url string) (host string, port string, path string, err error)

	// ClientNew creates a client bound to url but does not dial it.
	ClientNew(url string) (Client, error)

	// FindServers and GetEndpoints are discovery calls; they do not require
	// a prior ClientNew/Connect.
	FindServers(ctx context.Context, url string, serverURIs, localeIDs []string) ([]ApplicationDescription, StatusCode, error)
	GetEndpoints(ctx context.Context, url string) ([]EndpointDescription, StatusCode, error)
}

// Client is a connected (or connectable) session handle, spec §3 "Session".
type Client interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Endpoint() string

	Read(ctx context.Context, nodes []ReadValueID) ([]DataValue, StatusCode, error)
	Write(ctx context.Context, values []WriteValue) ([]StatusCode, StatusCode, error)

	Browse(ctx context.Context, descs []BrowseDescription) ([]BrowseResult, StatusCode, error)
	BrowseNext(ctx context.Context, continuationPoints [][]byte) ([]BrowseResult, StatusCode, error)

	CallMethod(ctx context.Context, objectID, methodID NodeID, inputs []Argument) ([]Argument, StatusCode, error)

	SubscriptionsCreate(ctx context.Context, params SubscriptionParameters) (subscriptionID uint32, status StatusCode, err error)
	MonitoredItemsCreateDataChange(ctx context.Context, subscriptionID uint32, item MonitoredItemCreateRequest, onChange DataChangeCallback) (MonitoredItemResult, error)
	SubscriptionsModify(ctx context.Context, subscriptionID uint32, params SubscriptionParameters) (StatusCode, error)
	MonitoredItemsModify(ctx context.Context, subscriptionID, monitoredItemID uint32, params MonitoringParameters) (MonitoredItemResult, error)
	SetMonitoringMode(ctx context.Context, subscriptionID, monitoredItemID uint32, reporting bool) (StatusCode, error)
	SetPublishingMode(ctx context.Context, subscriptionID uint32, enabled bool) (StatusCode, error)
	SubscriptionsDeleteSingle(ctx context.Context, subscriptionID uint32) (StatusCode, error)
	MonitoredItemsDeleteSingle(ctx context.Context, subscriptionID, monitoredItemID uint32) (StatusCode, error)
	Republish(ctx context.Context, subscriptionID uint32, retransmitSequenceNumber uint32) (StatusCode, error)

	// RunAsync drives one publish round and returns promptly; it delivers
	// at most one pending data-change notification per subscription to
	// the callback registered at MonitoredItemsCreateDataChange time. It
	// does not sleep out interval itself — the caller holds a
	// serialization lock only across this call, then sleeps interval
	// outside the lock before calling again.
	RunAsync(ctx context.Context, interval time.Duration) error
}

// DataChangeCallback is invoked by RunAsync when a monitored item reports a
// new value, per spec §4.8 "Data-change delivery".
type DataChangeCallback func(subscriptionID, monitoredItemID uint32, value DataValue, isScalar bool)

// Server hosts a namespace of addressable nodes (spec §4.8.1, supplementing
// the facade's createServer/closeServer verbs). Node creation/storage is an
// external collaborator per spec §1; this interface is the "small
// interface" the core calls through unchanged.
type Server interface {
	Start(ctx context.Context) error
	Close(ctx context.Context) error
	AddNode(item ServerNodeItem) error
	RemoveNode(nodeID NodeID) error
}

// ServerNodeItem is the minimal description needed to add one node to the
// hosted address space; the factory that actually allocates namespace
// storage lives in the external stack.
type ServerNodeItem struct {
	NodeID      NodeID
	BrowseName  QualifiedName
	DisplayName LocalizedText
	NodeClass   NodeClass
	Value       *Variant
}

// ServerConfig configures a hosted server endpoint.
type ServerConfig struct {
	EndpointURL string
	ServerURI   string
}
