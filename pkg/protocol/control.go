package protocol

// Control commands shared by both gateways.
const (
	CmdClose     uint8 = 0
	CmdHeartbeat uint8 = 1
	CmdAuth      uint8 = 2
	CmdReconnect uint8 = 3
)

// CloseCode is the reason carried by a server Close push.
type CloseCode int32

const (
	CloseHeartbeatTimeout CloseCode = 0
	CloseServerError      CloseCode = 1
	CloseServerShutdown   CloseCode = 2
	CloseUnpackError      CloseCode = 3
	CloseAuthError        CloseCode = 4
	CloseSessExpired      CloseCode = 5
	CloseConnectDuplicate CloseCode = 6
)

func (c CloseCode) String() string {
	switch c {
	case CloseHeartbeatTimeout:
		return "heartbeat_timeout"
	case CloseServerError:
		return "server_error"
	case CloseServerShutdown:
		return "server_shutdown"
	case CloseUnpackError:
		return "unpack_error"
	case CloseAuthError:
		return "auth_error"
	case CloseSessExpired:
		return "session_expired"
	case CloseConnectDuplicate:
		return "connect_duplicate"
	default:
		return "unknown"
	}
}

type Close struct {
	Code   CloseCode `pb:"1"`
	Reason string    `pb:"2"`
}

type Heartbeat struct {
	Timestamp int64 `pb:"1"`
}

type AuthRequest struct {
	Token string `pb:"1"`
}

type AuthResponse struct {
	SessionID string `pb:"1"`
	Expires   int64  `pb:"2"` // unix millis
}

type ReconnectRequest struct {
	SessionID string `pb:"1"`
}

type ReconnectResponse struct {
	SessionID string `pb:"1"`
	Expires   int64  `pb:"2"`
}

// Error is the body of a response with a non-zero status.
type Error struct {
	Code uint64 `pb:"1"`
	Msg  string `pb:"2"`
}
