package pluginrpc

import (
	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name, matching what a
// protoc-generated file would have produced had one existed.
const ServiceName = "maowbot.plugin.v1.PluginService"

// PluginServiceServer is implemented by the plugin manager (C7) to
// handle a plugin's session stream. Plugins are independent processes
// (possibly written in any language) that dial this RPC directly; there
// is no in-module Go client stub because nothing in this repo acts as a
// plugin itself.
type PluginServiceServer interface {
	StartSession(stream PluginService_StartSessionServer) error
}

// PluginService_StartSessionServer is the server-side view of the
// bidi-streaming StartSession RPC: a typed wrapper over grpc.ServerStream.
type PluginService_StartSessionServer interface {
	Send(*ServerFrame) error
	Recv() (*ClientFrame, error)
	grpc.ServerStream
}

type pluginServiceStartSessionServer struct {
	grpc.ServerStream
}

func (s *pluginServiceStartSessionServer) Send(m *ServerFrame) error {
	return s.ServerStream.SendMsg(m)
}

func (s *pluginServiceStartSessionServer) Recv() (*ClientFrame, error) {
	m := new(ClientFrame)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func startSessionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(PluginServiceServer).StartSession(&pluginServiceStartSessionServer{stream})
}

// ServiceDesc is the hand-authored stand-in for what protoc-gen-go-grpc
// would emit from a .proto file. Registered with RegisterPluginServiceServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PluginServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StartSession",
			Handler:       startSessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "maowbot/plugin/v1/plugin.proto",
}

// RegisterPluginServiceServer registers srv with s, mirroring the
// registration function a protoc-generated _grpc.pb.go file provides.
func RegisterPluginServiceServer(s *grpc.Server, srv PluginServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
