package protocol

// Trade gateway command codes.
const (
	CmdTradeSub    uint8 = 16
	CmdTradeUnsub  uint8 = 17
	CmdTradeNotify uint8 = 18
)

// Notification content types.
const (
	ContentUndefined int32 = 0
	ContentJSON      int32 = 1
	ContentProto     int32 = 2
)

type Sub struct {
	Topics []string `pb:"1"`
}

type SubResponse struct {
	Success []string  `pb:"1"`
	Fail    []SubFail `pb:"2"`
	Current []string  `pb:"3"`
}

type SubFail struct {
	Topic  string `pb:"1"`
	Reason string `pb:"2"`
}

type Unsub struct {
	Topics []string `pb:"1"`
}

type UnsubResponse struct {
	Current []string `pb:"3"`
}

// Notification wraps a trade push; Data is JSON when ContentType is
// ContentJSON.
type Notification struct {
	Topic        string `pb:"1"`
	ContentType  int32  `pb:"2"`
	DispatchType int32  `pb:"3"`
	Data         []byte `pb:"4"`
}
