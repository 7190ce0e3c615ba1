// Package stack defines the narrow contract the adapter consumes from the
// underlying OPC-UA wire stack (spec §6.2) and a concrete implementation
// over github.com/gopcua/opcua. Nothing above this package talks to gopcua
// directly; they talk to Stack.
package stack

import "time"

// IdentifierType is the kind of NodeID identifier carried by a NodeID.
type IdentifierType int

const (
	IdentifierNumeric IdentifierType = iota
	IdentifierString
	IdentifierByteString
	IdentifierGUID
)

// NodeID names one node by (namespaceIndex, identifier), per spec §3.
type NodeID struct {
	Namespace      uint16
	IdentifierType IdentifierType
	Numeric        uint32
	Text           string // String identifier, or the 36-char canonical GUID text
	Bytes          []byte // ByteString identifier
}

// BuiltinType tags the wire type carried by a Variant, per the §4.5 decoding
// table plus the node-attribute types used by method arguments.
type BuiltinType int

const (
	TypeBoolean BuiltinType = iota
	TypeSByte
	TypeByte
	TypeInt16
	TypeUInt16
	TypeInt32
	TypeUInt32
	TypeInt64
	TypeUInt64
	TypeFloat
	TypeDouble
	TypeDateTime
	TypeString
	TypeByteString
	TypeXMLElement
	TypeGUID
	TypeLocalizedText
	TypeQualifiedName
	TypeNodeID
)

// LocalizedText is the (locale, text) pair decoding table row.
type LocalizedText struct {
	Locale string
	Text   string
}

// QualifiedName is the (namespaceIndex, name) pair decoding table row.
type QualifiedName struct {
	NamespaceIndex uint16
	Name           string
}

// Variant is the stack-native tagged value carried by a DataValue. Exactly
// one of the Scalar* fields or Array is populated, selected by Type and
// IsArray.
type Variant struct {
	Type    BuiltinType
	IsArray bool

	// Scalar payload, one of:
	Bool          bool
	Int           int64  // SByte/Int16/Int32/Int64 (sign-extended)
	Uint          uint64 // Byte/UInt16/UInt32/UInt64 (zero-extended)
	Float32       float32
	Float64       float64
	Time          time.Time
	Bytes         []byte // String/ByteString/XmlElement payload
	GUID          [16]byte
	LocalizedText LocalizedText
	QualifiedName QualifiedName
	NodeID        NodeID

	// Array payload: one slice is non-nil, matching Type.
	BoolArray          []bool
	IntArray           []int64
	UintArray          []uint64
	Float32Array       []float32
	Float64Array       []float64
	TimeArray          []time.Time
	BytesArray         [][]byte
	GUIDArray          [][16]byte
	LocalizedTextArray []LocalizedText
	QualifiedNameArray []QualifiedName
	NodeIDArray        []NodeID
}

// StatusCode mirrors the OPC-UA status code space; only the names the
// adapter inspects are enumerated, everything else passes through Raw.
type StatusCode struct {
	Raw  uint32
	Name string
}

// Good reports whether the status represents success.
func (s StatusCode) Good() bool { return s.Raw == 0 }

var (
	StatusOK                     = StatusCode{Raw: 0, Name: "Good"}
	StatusBadNodeIDUnknown       = StatusCode{Raw: 0x80340000, Name: "BadNodeIdUnknown"}
	StatusBadMessageNotAvailable = StatusCode{Raw: 0x807E0000, Name: "BadMessageNotAvailable"}
	StatusBadSubscriptionIDInvalid = StatusCode{Raw: 0x80280000, Name: "BadSubscriptionIdInvalid"}
	StatusBadTimeout              = StatusCode{Raw: 0x800A0000, Name: "BadTimeout"}
)

// DataValue is one attribute value as returned by Read or delivered by a
// data-change notification.
type DataValue struct {
	Status          StatusCode
	Value           *Variant
	ServerTimestamp time.Time
	SourceTimestamp time.Time
}

// ReadValueID names one (node, attribute) pair to read.
type ReadValueID struct {
	NodeID      NodeID
	AttributeID uint32
}

// WriteValue names one (node, attribute) pair and the value to write.
type WriteValue struct {
	NodeID      NodeID
	AttributeID uint32
	Value       DataValue
}

// Attribute IDs the adapter addresses (OPC-UA Part 6 Table 1 subset).
const (
	AttributeIDValue                  uint32 = 13
	AttributeIDMinimumSamplingInterval uint32 = 20
)

// NodeClass is the bitmask-selectable class of a browsed node.
type NodeClass uint32

const (
	NodeClassObject   NodeClass = 1
	NodeClassVariable NodeClass = 2
	NodeClassMethod   NodeClass = 4
	NodeClassView     NodeClass = 8
)

// BrowseDirection selects which reference direction a browse follows.
type BrowseDirection int

const (
	BrowseDirectionForward BrowseDirection = iota
	BrowseDirectionInverse
	BrowseDirectionBoth
)

// BrowseDescription is one start node of a browse call.
type BrowseDescription struct {
	NodeID        NodeID
	Direction     BrowseDirection
	NodeClassMask NodeClass
	MaxReferences uint32
}

// ReferenceDescription is one reference returned by a browse.
type ReferenceDescription struct {
	ReferenceTypeID NodeID
	IsForward       bool
	TargetNodeID    NodeID
	ServerIndex     uint32
	BrowseName      QualifiedName
	DisplayName     LocalizedText
	NodeClass       NodeClass
	TypeDefinition  NodeID
}

// BrowseResult is one level-result of a browse call: the references found
// for one start node, plus an optional continuation point if the result
// set was truncated.
type BrowseResult struct {
	StartNodeID        NodeID
	Status             StatusCode
	References         []ReferenceDescription
	ContinuationPoint  []byte
}

// MonitoringParameters configures one monitored item.
type MonitoringParameters struct {
	ClientHandle     uint32
	SamplingInterval float64
	QueueSize        uint32
	DiscardOldest    bool
}

// MonitoredItemCreateRequest requests monitoring of one node attribute.
type MonitoredItemCreateRequest struct {
	NodeID      NodeID
	AttributeID uint32
	Parameters  MonitoringParameters
}

// MonitoredItemResult is the per-item outcome of creating/modifying a
// monitored item.
type MonitoredItemResult struct {
	Status              StatusCode
	MonitoredItemID     uint32
	RevisedSamplingInterval float64
	RevisedQueueSize     uint32
}

// SubscriptionParameters configures a subscription.
type SubscriptionParameters struct {
	PublishingInterval         time.Duration
	LifetimeCount              uint32
	MaxKeepAliveCount          uint32
	MaxNotificationsPerPublish uint32
	Priority                   uint8
	PublishingEnabled          bool
}

// Argument carries one typed method call argument, input or output.
type Argument struct {
	Value *Variant
}

// ApplicationDescription is one server description returned by FindServers.
type ApplicationDescription struct {
	ApplicationURI  string
	ApplicationName LocalizedText
	ApplicationType uint32
	DiscoveryURLs   []string
}

// ApplicationTypeMask bits for FindServers filtering, per spec §6.1.
type ApplicationTypeMask uint32

const (
	ApplicationTypeServer          ApplicationTypeMask = 1
	ApplicationTypeClient          ApplicationTypeMask = 2
	ApplicationTypeClientAndServer ApplicationTypeMask = 4
	ApplicationTypeDiscoveryServer ApplicationTypeMask = 8
)

// EndpointDescription is one endpoint returned by GetEndpoints.
type EndpointDescription struct {
	EndpointURL       string
	SecurityPolicyURI string
	SecurityMode      string
	Server            ApplicationDescription
}
