package pluginrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is registered with grpc-go's encoding package and selected
// server-side via grpc.ForceServerCodec, replacing the default protobuf
// codec. Every message grpc-go hands to Marshal/Unmarshal here is
// already a *ClientFrame or *ServerFrame produced by the generated-ish
// stream wrappers in service.go.
const codecName = "maowbot-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// errUnexpectedFrame is returned when a stream receives a frame whose
// Type doesn't match any known variant.
func errUnexpectedFrame(frameType string) error {
	return fmt.Errorf("pluginrpc: unexpected frame type %q", frameType)
}
