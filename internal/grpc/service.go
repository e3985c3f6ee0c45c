package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	_ "google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"rdpso/simulator/internal/networking"
	"rdpso/simulator/internal/pso"
	"rdpso/simulator/internal/simulator"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "rdpso.v1.Simulator"

	defaultStreamRateHz = 10
	maxStreamRateHz     = 60
	// maxStepsPerCall bounds a single Step RPC.
	maxStepsPerCall = 10000
)

// Option customises the behaviour of the gRPC service.
type Option func(*Service)

// tickerFactory constructs cancellable tick channels for throttled streaming.
type tickerFactory func(time.Duration) (<-chan time.Time, func())

// WithTickerFactory overrides the throttling ticker factory (used in tests).
func WithTickerFactory(factory tickerFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

func defaultTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

// SimulatorServer is the server API of rdpso.v1.Simulator. Messages are
// protobuf Struct values carrying the JSON shape of the networking types.
type SimulatorServer interface {
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetBest(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetPosition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamSnapshots(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// Service implements SimulatorServer over a Backend.
type Service struct {
	backend   Backend
	encoder   *networking.SnapshotEncoder
	newTicker tickerFactory
}

// NewService wires the gRPC service to the backend.
func NewService(backend Backend, opts ...Option) *Service {
	service := &Service{backend: backend, encoder: networking.NewSnapshotEncoder(), newTicker: defaultTickerFactory}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service
}

// Register attaches the service to a gRPC server.
func Register(server grpc.ServiceRegistrar, service SimulatorServer) {
	server.RegisterService(&ServiceDesc, service)
}

// Step advances the simulation by the requested number of iterations (default 1).
func (s *Service) Step(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s == nil || s.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "simulation unavailable")
	}
	count, err := intField(req, "count", 1)
	if err != nil {
		return nil, err
	}
	if count < 1 || count > maxStepsPerCall {
		return nil, status.Errorf(codes.InvalidArgument, "count must be in [1, %d], got %d", maxStepsPerCall, count)
	}
	snapshot, err := s.backend.Step(ctx, count)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.snapshotStruct(snapshot)
}

// Reset redeploys the swarm.
func (s *Service) Reset(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "simulation unavailable")
	}
	snapshot, err := s.backend.Reset(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.snapshotStruct(snapshot)
}

// GetBest reports the current and historic best results.
func (s *Service) GetBest(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "simulation unavailable")
	}
	snapshot := s.backend.Snapshot()
	return toStruct(BestResult{Iteration: snapshot.Iteration, Best: snapshot.Best, HistoricBest: snapshot.HistoricBest})
}

// GetPosition returns the position of the particle at index.
func (s *Service) GetPosition(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s == nil || s.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "simulation unavailable")
	}
	idx, err := intField(req, "index", -1)
	if err != nil {
		return nil, err
	}
	position, err := s.backend.ParticlePosition(idx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(position)
}

// StreamSnapshots relays snapshots at most rate_hz times per second. Only the
// latest snapshot is kept between ticks so slow clients never fall behind.
func (s *Service) StreamSnapshots(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s == nil || s.backend == nil {
		return status.Error(codes.FailedPrecondition, "simulation unavailable")
	}
	rateHz, err := intField(req, "rate_hz", defaultStreamRateHz)
	if err != nil {
		return err
	}
	if rateHz < 1 || rateHz > maxStreamRateHz {
		return status.Errorf(codes.InvalidArgument, "rate_hz must be in [1, %d], got %d", maxStreamRateHz, rateHz)
	}

	//1.- Subscribe to the engine fan-out so we receive future snapshots.
	ctx := stream.Context()
	snapshots, cancel, err := s.backend.SubscribeSnapshots(ctx)
	if err != nil {
		return status.Errorf(codes.Internal, "subscribe snapshots: %v", err)
	}
	defer cancel()

	tickCh, stop := s.newTicker(time.Second / time.Duration(rateHz))
	defer stop()

	var (
		latest   *networking.Snapshot
		upstream = snapshots
	)
	for {
		select {
		case <-ctx.Done():
			//2.- Surface cancellation so clients can retry.
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case snapshot, ok := <-upstream:
			if !ok {
				//3.- Note the closed channel so the loop ends after the last flush.
				upstream = nil
				if latest == nil {
					return nil
				}
				continue
			}
			//4.- Keep only the newest snapshot between ticks.
			latest = &snapshot
		case <-tickCh:
			if latest == nil {
				if upstream == nil {
					return nil
				}
				continue
			}
			//5.- Flush the coalesced snapshot at the throttled cadence.
			msg, err := s.snapshotStruct(*latest)

			if err != nil {
				return err
			}
			latest = nil
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func (s *Service) snapshotStruct(snapshot networking.Snapshot) (*structpb.Struct, error) {
	msg, err := s.encoder.Struct(snapshot)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
	}
	return msg, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return msg, nil
}

// intField reads an integral number field, returning fallback when absent.
func intField(req *structpb.Struct, key string, fallback int) (int, error) {
	value, ok := req.GetFields()[key]
	if !ok {
		return fallback, nil
	}
	number, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", key)
	}
	if number.NumberValue != math.Trunc(number.NumberValue) || math.Abs(number.NumberValue) > math.MaxInt32 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer, got %v", key, number.NumberValue)
	}
	return int(number.NumberValue), nil
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pso.ErrIndexOutOfRange):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, simulator.ErrInvalidConfig):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("simulation: %v", err))
	}
}

var _ SimulatorServer = (*Service)(nil)
