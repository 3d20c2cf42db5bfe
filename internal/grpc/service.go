package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/mr1hm/go-disaster-risk/internal/models"
)

const serviceName = "riskengine.v1.EngineService"

type ListActiveAlertsRequest struct {
	Limit    int32  `json:"limit,omitempty"`
	RegionID string `json:"region_id,omitempty"`
}

type ListActiveAlertsResponse struct {
	Alerts []models.Alert `json:"alerts"`
}

type StreamEventsRequest struct {
	// Empty matches every region.
	RegionID string `json:"region_id,omitempty"`
	// Empty matches every event type.
	Types []models.EventType `json:"types,omitempty"`
}

type EngineServiceServer interface {
	ListActiveAlerts(ctx context.Context, req *ListActiveAlertsRequest) (*ListActiveAlertsResponse, error)
	StreamEvents(req *StreamEventsRequest, stream EventStream) error
}

// EventStream is the server side of StreamEvents.
type EventStream interface {
	Send(e *models.Event) error
	Context() context.Context
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(e *models.Event) error {
	return s.ServerStream.SendMsg(e)
}

var engineServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EngineServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListActiveAlerts",
			Handler:    listActiveAlertsHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       streamEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "riskengine/v1/engine",
}

func RegisterEngineServiceServer(s grpc.ServiceRegistrar, srv EngineServiceServer) {
	s.RegisterService(&engineServiceDesc, srv)
}

func listActiveAlertsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListActiveAlertsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EngineServiceServer).ListActiveAlerts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/ListActiveAlerts",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EngineServiceServer).ListActiveAlerts(ctx, req.(*ListActiveAlertsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func streamEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(StreamEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(EngineServiceServer).StreamEvents(in, &eventStream{stream})
}

// Client calls EngineService over an existing connection using the JSON codec.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) ListActiveAlerts(ctx context.Context, req *ListActiveAlertsRequest, opts ...grpc.CallOption) (*ListActiveAlertsResponse, error) {
	out := new(ListActiveAlertsResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/ListActiveAlerts", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// EventReceiver is the client side of StreamEvents.
type EventReceiver struct {
	stream grpc.ClientStream
}

func (r *EventReceiver) Recv() (*models.Event, error) {
	e := new(models.Event)
	if err := r.stream.RecvMsg(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (c *Client) StreamEvents(ctx context.Context, req *StreamEventsRequest, opts ...grpc.CallOption) (*EventReceiver, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	stream, err := c.conn.NewStream(ctx, &engineServiceDesc.Streams[0], "/"+serviceName+"/StreamEvents", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventReceiver{stream: stream}, nil
}
