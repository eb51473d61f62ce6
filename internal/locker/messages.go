package locker

// Device message types. A controller speaks the same JSON vocabulary over
// both the websocket and the HTTP-poll transport.
const (
	MsgRegister   = "register"
	MsgPing       = "ping"
	MsgHeartbeat  = "heartbeat"
	MsgCellLocked = "cellLocked"
	MsgCellOpened = "cellOpened"
	MsgCellClosed = "cellClosed"
	MsgAck        = "ack"
)

// DeviceMessage is the envelope for everything a locker controller sends
// upstream. Fields are populated according to Type; pointer fields
// distinguish "absent" from zero so a cellLocked report without a success
// flag is not mistaken for a failed command reply.
type DeviceMessage struct {
	Type      string                `json:"type"`
	ID        string                `json:"id,omitempty"`
	IP        string                `json:"ip,omitempty"`
	Cells     map[string]CellUpdate `json:"cells,omitempty"`
	Cell      string                `json:"cell,omitempty"`
	Locked    *bool                 `json:"locked,omitempty"`
	PackageID *string               `json:"packageId,omitempty"`
	RequestID string                `json:"requestId,omitempty"`
	Success   *bool                 `json:"success,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// IsReply reports whether the message answers a dispatched command.
// Any message carrying a correlation ID counts; firmware variants reply
// with type "ack" or by echoing the command type.
func (m *DeviceMessage) IsReply() bool {
	return m.RequestID != ""
}

// ReplySuccess interprets the success flag of a command reply. A reply
// without an explicit flag is treated as success, matching controllers
// that only attach success:false on failure.
func (m *DeviceMessage) ReplySuccess() bool {
	if m.Success == nil {
		return true
	}
	return *m.Success
}
