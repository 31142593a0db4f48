package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "dogbark.v1.SensorService"

const (
	getLatestReadingMethod = "/" + ServiceName + "/GetLatestReading"
	getHistoryMethod       = "/" + ServiceName + "/GetHistory"
)

// SensorServiceServer is the server API for the sensor status service.
// Messages use the protobuf well-known Struct type, so no generated code
// is needed on either side.
type SensorServiceServer interface {
	GetLatestReading(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterSensorServiceServer registers srv with s.
func RegisterSensorServiceServer(s grpc.ServiceRegistrar, srv SensorServiceServer) {
	s.RegisterService(&sensorServiceDesc, srv)
}

var sensorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SensorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetLatestReading", Handler: getLatestReadingHandler},
		{MethodName: "GetHistory", Handler: getHistoryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dogbark/v1/sensor.proto",
}

func getLatestReadingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SensorServiceServer).GetLatestReading(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getLatestReadingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SensorServiceServer).GetLatestReading(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getHistoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SensorServiceServer).GetHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getHistoryMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SensorServiceServer).GetHistory(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SensorServiceClient is the client API for the sensor status service.
type SensorServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSensorServiceClient creates a client over cc.
func NewSensorServiceClient(cc grpc.ClientConnInterface) *SensorServiceClient {
	return &SensorServiceClient{cc: cc}
}

// GetLatestReading fetches the most recent journaled reading.
func (c *SensorServiceClient) GetLatestReading(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getLatestReadingMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHistory fetches readings in [start, end) given as unix seconds.
func (c *SensorServiceClient) GetHistory(ctx context.Context, start, end int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{
		"start_time": start,
		"end_time":   end,
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getHistoryMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
