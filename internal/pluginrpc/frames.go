/*
Package pluginrpc is the wire protocol for the plugin manager's (C7)
bidirectional streaming RPC. There are no .proto sources or a protoc/buf
toolchain anywhere in this module's retrieval pack, so the service is
hand-authored directly against grpc-go's low-level APIs (grpc.ServiceDesc,
grpc.StreamDesc) instead of protoc-generated stubs, with a small JSON
codec standing in for the usual protobuf wire format.
*/
package pluginrpc

// ClientFrame is one message a plugin sends to the server over the
// StartSession stream. Exactly one of the payload fields is set,
// selected by Type.
type ClientFrame struct {
	Type string `json:"type"`

	Hello         *Hello         `json:"hello,omitempty"`
	LogMessage    *LogMessage    `json:"log_message,omitempty"`
	RequestStatus *RequestStatus `json:"request_status,omitempty"`
	RequestCaps   *RequestCaps   `json:"request_caps,omitempty"`
	SwitchScene   *SwitchScene   `json:"switch_scene,omitempty"`
	SendChat      *SendChat      `json:"send_chat,omitempty"`
	Shutdown      *Shutdown      `json:"shutdown,omitempty"`
}

// ServerFrame is one message the server sends to a plugin.
type ServerFrame struct {
	Type string `json:"type"`

	Welcome           *Welcome           `json:"welcome,omitempty"`
	AuthError         *AuthError         `json:"auth_error,omitempty"`
	Tick              *Tick              `json:"tick,omitempty"`
	ChatMessage       *ChatMessage       `json:"chat_message,omitempty"`
	StatusResponse    *StatusResponse    `json:"status_response,omitempty"`
	CapabilityResponse *CapabilityResponse `json:"capability_response,omitempty"`
	ForceDisconnect   *ForceDisconnect   `json:"force_disconnect,omitempty"`
}

const (
	ClientFrameHello         = "hello"
	ClientFrameLogMessage    = "log_message"
	ClientFrameRequestStatus = "request_status"
	ClientFrameRequestCaps   = "request_caps"
	ClientFrameSwitchScene   = "switch_scene"
	ClientFrameSendChat      = "send_chat"
	ClientFrameShutdown      = "shutdown"

	ServerFrameWelcome            = "welcome"
	ServerFrameAuthError          = "auth_error"
	ServerFrameTick               = "tick"
	ServerFrameChatMessage        = "chat_message"
	ServerFrameStatusResponse     = "status_response"
	ServerFrameCapabilityResponse = "capability_response"
	ServerFrameForceDisconnect    = "force_disconnect"
)

// Hello is the first message a plugin must send; before it arrives only
// Hello is honored and every other payload is ignored.
type Hello struct {
	PluginName string `json:"plugin_name"`
	Passphrase string `json:"passphrase"`
}

// LogMessage is recorded server-side at INFO; it has no response.
type LogMessage struct {
	Text string `json:"text"`
}

// RequestStatus asks for the current roster of connected plugins and
// server uptime.
type RequestStatus struct{}

// RequestCaps asks for additional capabilities. Granting is additive
// across successive calls and ChatModeration is always denied.
type RequestCaps struct {
	Requested []string `json:"requested"`
}

// SwitchScene asks the OBS integration to switch scenes; requires the
// SceneManagement capability.
type SwitchScene struct {
	SceneName string `json:"scene_name"`
}

// SendChat asks the server to publish a ChatMessage event on behalf of
// this plugin session; requires the SendChat capability.
type SendChat struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// Shutdown asks the server to shut down the whole event bus.
type Shutdown struct{}

// Welcome is the server's reply to a successful Hello.
type Welcome struct {
	BotName string `json:"bot_name"`
}

// AuthError is sent either for a failed Hello (session is then
// terminated) or for a capability-gated request made without the
// required capability (session continues).
type AuthError struct {
	Reason string `json:"reason"`
}

// Tick is a periodic heartbeat event relayed to sessions holding
// ReceiveChatEvents.
type Tick struct{}

// ChatMessage relays a normalized chat event to sessions holding
// ReceiveChatEvents.
type ChatMessage struct {
	Platform string `json:"platform"`
	Channel  string `json:"channel"`
	User     string `json:"user"`
	Text     string `json:"text"`
}

// StatusResponse answers RequestStatus.
type StatusResponse struct {
	ConnectedPlugins []string `json:"connected_plugins"`
	ServerUptime     float64  `json:"server_uptime"`
}

// CapabilityResponse answers RequestCaps with the split of granted vs
// denied capabilities from the request.
type CapabilityResponse struct {
	Granted []string `json:"granted"`
	Denied  []string `json:"denied"`
}

// ForceDisconnect is sent immediately before the server closes the
// stream, e.g. when a session's outbound queue overflows.
type ForceDisconnect struct {
	Reason string `json:"reason"`
}
