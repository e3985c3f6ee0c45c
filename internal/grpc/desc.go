package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names, used by interceptors to tell mutating calls apart.
const (
	StepMethod            = "/" + ServiceName + "/Step"
	ResetMethod           = "/" + ServiceName + "/Reset"
	GetBestMethod         = "/" + ServiceName + "/GetBest"
	GetPositionMethod     = "/" + ServiceName + "/GetPosition"
	StreamSnapshotsMethod = "/" + ServiceName + "/StreamSnapshots"
)

// MutatingMethods lists the RPCs that change simulation state.
var MutatingMethods = map[string]bool{
	StepMethod:  true,
	ResetMethod: true,
}

func stepHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulatorServer).Step(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StepMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SimulatorServer).Step(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func resetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulatorServer).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ResetMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SimulatorServer).Reset(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getBestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulatorServer).GetBest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetBestMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SimulatorServer).GetBest(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getPositionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulatorServer).GetPosition(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetPositionMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SimulatorServer).GetPosition(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamSnapshotsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SimulatorServer).StreamSnapshots(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc describes rdpso.v1.Simulator for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Step", Handler: stepHandler},
		{MethodName: "Reset", Handler: resetHandler},
		{MethodName: "GetBest", Handler: getBestHandler},
		{MethodName: "GetPosition", Handler: getPositionHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamSnapshots", Handler: streamSnapshotsHandler, ServerStreams: true},
	},
	Metadata: "rdpso/v1/simulator.proto",
}
