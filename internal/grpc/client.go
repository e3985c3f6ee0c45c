package grpc

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a thin typed wrapper over a connection to rdpso.v1.Simulator.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Step advances count iterations and returns the final snapshot.
func (c *Client) Step(ctx context.Context, count int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"count": count})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, StepMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Reset redeploys the swarm.
func (c *Client) Reset(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ResetMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBest fetches the current and historic best results.
func (c *Client) GetBest(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetBestMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPosition fetches the position of one particle.
func (c *Client) GetPosition(ctx context.Context, index int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"index": index})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetPositionMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamSnapshots opens a throttled snapshot stream.
func (c *Client) StreamSnapshots(ctx context.Context, rateHz int, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	in, err := structpb.NewStruct(map[string]any{"rate_hz": rateHz})
	if err != nil {
		return nil, err
	}
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], StreamSnapshotsMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	// io.EOF means the server already ended the stream; Recv reports its status.
	if err := x.ClientStream.SendMsg(in); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
