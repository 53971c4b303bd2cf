package event

// CaptureKind discriminates the origin of a raw capture event.
type CaptureKind string

const (
	KindSslRead     CaptureKind = "SslRead"
	KindSslWrite    CaptureKind = "SslWrite"
	KindProcessExec CaptureKind = "ProcessExec"
	KindProcessExit CaptureKind = "ProcessExit"
	KindFileOpen    CaptureKind = "FileOpen"
	KindFileIO      CaptureKind = "FileIO"
	KindNetConnect  CaptureKind = "NetConnect"
	KindNetDNS      CaptureKind = "NetDNS"
)

// RawCaptureMetadata is the loosely-populated attribution the external
// capturer attaches; every field is optional because capturers vary in what
// they can observe (an eBPF uprobe knows different things than a macOS
// Network Extension).
type RawCaptureMetadata struct {
	Comm        *string `json:"comm,omitempty"`
	Exe         *string `json:"exe,omitempty"`
	UID         *int    `json:"uid,omitempty"`
	PPID        *int    `json:"ppid,omitempty"`
	Fd          *int    `json:"fd,omitempty"`
	RemoteAddr  *string `json:"remote_addr,omitempty"`
	RemotePort  *int    `json:"remote_port,omitempty"`
	BundleID    *string `json:"bundle_id,omitempty"`
	Path        *string `json:"path,omitempty"`
}

// RawCaptureEvent is the pipeline's sole ingress type: an opaque byte buffer
// plus process attribution, exactly as it arrives from an external
// capturer. It carries no interpretation of its payload — that is the
// Decoder's job.
type RawCaptureEvent struct {
	ID          string              `json:"id"`
	TimestampNs int64               `json:"timestamp_ns"`
	Kind        CaptureKind         `json:"kind"`
	PID         int                 `json:"pid"`
	TID         *int                `json:"tid,omitempty"`
	Data        []byte              `json:"data"`
	Metadata    RawCaptureMetadata  `json:"metadata"`
	RemoteHost  *string             `json:"remote_host,omitempty"`
	RemotePort  *int                `json:"remote_port,omitempty"`
}

// MaxCaptureBytes is the upper bound on plaintext captured per raw event, as
// enforced by the external capturer and assumed (not re-validated) here.
const MaxCaptureBytes = 4096
