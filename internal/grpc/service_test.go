package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"

	"rdpso/simulator/internal/goal"
	"rdpso/simulator/internal/networking"
	"rdpso/simulator/internal/pso"
	"rdpso/simulator/internal/space"
)

type fakeBackend struct {
	mu         sync.Mutex
	iteration  uint64
	steps      []int
	positions  []space.Vector
	snapshots  chan networking.Snapshot
	subscribed chan struct{}
	stepErr    error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		positions:  []space.Vector{space.NewVector(1, 2, 3)},
		snapshots:  make(chan networking.Snapshot),
		subscribed: make(chan struct{}, 1),
	}
}

func (f *fakeBackend) snapshot() networking.Snapshot {
	return networking.Snapshot{
		RunID:        "run-1",
		Iteration:    f.iteration,
		Goal:         goal.Griewank,
		Strategy:     goal.Minimize,
		Best:         goal.NewPerformance(space.NewVector(1, 2, 3), 0.5),
		HistoricBest: goal.NewPerformance(space.NewVector(1, 2, 3), 0.25),
	}
}

func (f *fakeBackend) Step(_ context.Context, count int) (networking.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stepErr != nil {
		return networking.Snapshot{}, f.stepErr
	}
	f.steps = append(f.steps, count)
	f.iteration += uint64(count)
	return f.snapshot(), nil
}

func (f *fakeBackend) Reset(context.Context) (networking.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iteration = 0
	return f.snapshot(), nil
}

func (f *fakeBackend) Snapshot() networking.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot()
}

func (f *fakeBackend) ParticlePosition(idx int) (space.Vector, error) {
	if idx < 0 || idx >= len(f.positions) {
		return space.Vector{}, fmt.Errorf("%w: %d", pso.ErrIndexOutOfRange, idx)
	}
	return f.positions[idx], nil
}

func (f *fakeBackend) SubscribeSnapshots(context.Context) (<-chan networking.Snapshot, func(), error) {
	f.subscribed <- struct{}{}
	return f.snapshots, func() {}, nil
}

func startServer(t *testing.T, backend Backend, opts []grpc.ServerOption, svcOpts ...Option) *Client {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer(opts...)
	Register(server, NewService(backend, svcOpts...))
	go func() {
		_ = server.Serve(listener)
	}()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		server.Stop()
	})
	return NewClient(conn)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStepReturnsDecodedSnapshot(t *testing.T) {
	backend := newFakeBackend()
	client := startServer(t, backend, nil)

	//1.- Request three iterations and decode the resulting snapshot.
	reply, err := client.Step(testContext(t), 3)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	snapshot, err := networking.DecodeSnapshot(reply)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.Iteration != 3 || snapshot.RunID != "run-1" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if snapshot.Goal != goal.Griewank || snapshot.Best.Score != 0.5 {
		t.Fatalf("unexpected best %+v goal %v", snapshot.Best, snapshot.Goal)
	}
	if len(backend.steps) != 1 || backend.steps[0] != 3 {
		t.Fatalf("expected one call with count 3, got %v", backend.steps)
	}
}

func TestStepRejectsInvalidCount(t *testing.T) {
	client := startServer(t, newFakeBackend(), nil)
	for _, count := range []int{0, -1, maxStepsPerCall + 1} {
		_, err := client.Step(testContext(t), count)
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("count %d: expected InvalidArgument, got %v", count, err)
		}
	}
}

func TestStepMapsBackendErrors(t *testing.T) {
	backend := newFakeBackend()
	backend.stepErr = errors.New("terrain exploded")
	client := startServer(t, backend, nil)
	if _, err := client.Step(testContext(t), 1); status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestGetPositionAndBest(t *testing.T) {
	client := startServer(t, newFakeBackend(), nil)
	ctx := testContext(t)

	position, err := client.GetPosition(ctx, 0)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if got := position.GetFields()["z"].GetNumberValue(); got != 3 {
		t.Fatalf("expected z=3, got %v", got)
	}
	if _, err := client.GetPosition(ctx, 7); status.Code(err) != codes.OutOfRange {
		t.Fatalf("expected OutOfRange, got %v", err)
	}

	best, err := client.GetBest(ctx)
	if err != nil {
		t.Fatalf("get best: %v", err)
	}
	historic := best.GetFields()["historic_best"].GetStructValue()
	if got := historic.GetFields()["score"].GetNumberValue(); got != 0.25 {
		t.Fatalf("expected historic score 0.25, got %v", got)
	}
}

func TestResetReturnsIterationZero(t *testing.T) {
	backend := newFakeBackend()
	client := startServer(t, backend, nil)
	ctx := testContext(t)
	if _, err := client.Step(ctx, 4); err != nil {
		t.Fatalf("step: %v", err)
	}
	reply, err := client.Reset(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := reply.GetFields()["iteration"].GetNumberValue(); got != 0 {
		t.Fatalf("expected iteration 0 after reset, got %v", got)
	}
}

func TestAdminTokenGuardsMutations(t *testing.T) {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(AdminUnaryInterceptor("s3cret")),
		grpc.ChainStreamInterceptor(AdminStreamInterceptor("s3cret")),
	}
	client := startServer(t, newFakeBackend(), opts)
	ctx := testContext(t)

	//1.- Reads stay open while mutations require the token.
	if _, err := client.GetBest(ctx); err != nil {
		t.Fatalf("get best without token: %v", err)
	}
	if _, err := client.Step(ctx, 1); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
	wrong := metadata.AppendToOutgoingContext(ctx, AdminTokenMetadataKey, "nope")
	if _, err := client.Reset(wrong); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}

	//2.- Both the dedicated key and a bearer header are accepted.
	keyed := metadata.AppendToOutgoingContext(ctx, AdminTokenMetadataKey, "s3cret")
	if _, err := client.Step(keyed, 1); err != nil {
		t.Fatalf("step with token: %v", err)
	}
	bearer := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer s3cret")
	if _, err := client.Reset(bearer); err != nil {
		t.Fatalf("reset with bearer: %v", err)
	}
}

func TestStreamSnapshotsCoalescesToLatest(t *testing.T) {
	backend := newFakeBackend()
	ticks := make(chan time.Time)
	factory := func(time.Duration) (<-chan time.Time, func()) { return ticks, func() {} }
	client := startServer(t, backend, nil, WithTickerFactory(factory))
	ctx := testContext(t)

	stream, err := client.StreamSnapshots(ctx, 10)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	select {
	case <-backend.subscribed:
	case <-ctx.Done():
		t.Fatal("service never subscribed")
	}

	//1.- Two snapshots between ticks collapse into the latest one.
	backend.snapshots <- networking.Snapshot{RunID: "run-1", Iteration: 1}
	backend.snapshots <- networking.Snapshot{RunID: "run-1", Iteration: 2}
	ticks <- time.Now()

	msg, err := stream.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if got := msg.GetFields()["iteration"].GetNumberValue(); got != 2 {
		t.Fatalf("expected coalesced iteration 2, got %v", got)
	}

	//2.- Closing the upstream ends the stream cleanly.
	close(backend.snapshots)
	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestStreamSnapshotsRejectsRate(t *testing.T) {
	client := startServer(t, newFakeBackend(), nil)
	stream, err := client.StreamSnapshots(testContext(t), maxStreamRateHz+1)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if _, err := stream.Recv(); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestNilBackendIsUnavailable(t *testing.T) {
	service := NewService(nil)
	if _, err := service.GetBest(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}
