package event

// NetworkDirection is the direction of a flow relative to the monitored
// process.
type NetworkDirection string

const (
	DirectionOutbound NetworkDirection = "outbound"
	DirectionInbound  NetworkDirection = "inbound"
)

// NetworkConnectData is the payload for event type "network.connect".
type NetworkConnectData struct {
	RemoteAddr string `json:"remote_addr"`
	RemotePort int    `json:"remote_port"`
	Protocol   string `json:"protocol"` // tcp | udp
}

func (*NetworkConnectData) EventType() string { return EventTypeNetworkConnect }

// NetworkAcceptData is the payload for event type "network.accept".
type NetworkAcceptData struct {
	LocalAddr  string `json:"local_addr"`
	LocalPort  int    `json:"local_port"`
	RemoteAddr string `json:"remote_addr"`
	RemotePort int    `json:"remote_port"`
	Protocol   string `json:"protocol"`
}

func (*NetworkAcceptData) EventType() string { return EventTypeNetworkAccept }

// NetworkFlowData is the payload for event type "network.flow": a summary
// of bytes transferred over an already-established connection.
type NetworkFlowData struct {
	RemoteAddr    string           `json:"remote_addr"`
	RemotePort    int              `json:"remote_port"`
	Protocol      string           `json:"protocol"`
	Direction     NetworkDirection `json:"direction"`
	BytesSent     int64            `json:"bytes_sent"`
	BytesReceived int64            `json:"bytes_received"`
}

func (*NetworkFlowData) EventType() string { return EventTypeNetworkFlow }

// NetworkDNSData is the payload for event type "network.dns".
type NetworkDNSData struct {
	Question string   `json:"question"`
	QType    string   `json:"qtype"`
	Answers  []string `json:"answers,omitempty"`
	Rcode    string   `json:"rcode"`
}

func (*NetworkDNSData) EventType() string { return EventTypeNetworkDNS }
