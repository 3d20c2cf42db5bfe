package grpc

import (
	"context"
	"log/slog"
	"net"
	"slices"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mr1hm/go-disaster-risk/internal/alerting"
	"github.com/mr1hm/go-disaster-risk/internal/models"
)

// ActiveAlerts is the alert query the service needs; alerting.Manager
// satisfies it.
type ActiveAlerts interface {
	List(ctx context.Context, f alerting.ListFilter) ([]models.Alert, error)
}

type Server struct {
	alerts     ActiveAlerts
	hub        *EventHub
	grpcServer *grpc.Server
}

func NewServer(alerts ActiveAlerts, hub *EventHub) *Server {
	s := &Server{
		alerts: alerts,
		hub:    hub,
	}
	s.grpcServer = grpc.NewServer()
	RegisterEngineServiceServer(s.grpcServer, s)
	return s
}

func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	slog.Info("gRPC server listening", "addr", addr)
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

func (s *Server) ListActiveAlerts(ctx context.Context, req *ListActiveAlertsRequest) (*ListActiveAlertsResponse, error) {
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}

	limit := int(req.Limit)
	switch {
	case limit == 0:
		limit = alerting.DefaultActiveLimit
	case limit > alerting.MaxActiveLimit:
		limit = alerting.MaxActiveLimit
	}

	active := models.AlertStatusActive
	alerts, err := s.alerts.List(ctx, alerting.ListFilter{
		Status:   &active,
		RegionID: req.RegionID,
		SortBy:   alerting.SortByDate,
		Desc:     true,
		Limit:    limit,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to list alerts: %v", err)
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return &ListActiveAlertsResponse{Alerts: alerts}, nil
}

func (s *Server) StreamEvents(req *StreamEventsRequest, stream EventStream) error {
	id, ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	slog.Info("client subscribed to event stream", "subscriber_id", id, "region_id", req.RegionID)

	for {
		select {
		case <-stream.Context().Done():
			slog.Info("client disconnected from event stream", "subscriber_id", id)
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}

			if req.RegionID != "" && e.RegionID != req.RegionID {
				continue
			}
			if len(req.Types) > 0 && !slices.Contains(req.Types, e.Type) {
				continue
			}

			if err := stream.Send(e); err != nil {
				slog.Error("failed to send event to stream", "error", err, "subscriber_id", id)
				return err
			}
		}
	}
}
