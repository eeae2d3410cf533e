// Package health reports service readiness over gRPC and HTTP.
package health

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger checks the database connection
type Pinger interface {
	Ping() error
}

// Checker reports whether a broker connection is alive
type Checker interface {
	IsHealthy() bool
}

// Server implements the gRPC health checking protocol
type Server struct {
	grpc_health_v1.UnimplementedHealthServer
	db      Pinger
	brokers []Checker
	log     *zap.Logger
}

// NewServer creates a health server. Brokers are optional; without one only
// the database is checked.
func NewServer(database Pinger, log *zap.Logger, brokers ...Checker) *Server {
	return &Server{db: database, brokers: brokers, log: log}
}

// Status returns nil when every dependency is reachable
func (h *Server) Status() error {
	if err := h.db.Ping(); err != nil {
		h.log.Error("Database health check failed", zap.Error(err))
		return err
	}

	for _, broker := range h.brokers {
		if !broker.IsHealthy() {
			h.log.Error("RabbitMQ health check failed")
			return errors.New("rabbitmq connection closed")
		}
	}
	return nil
}

func (h *Server) response() *grpc_health_v1.HealthCheckResponse {
	if h.Status() != nil {
		return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}
	}
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}
}

// Check implements the health check
func (h *Server) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	return h.response(), nil
}

// Watch sends the current status once
func (h *Server) Watch(req *grpc_health_v1.HealthCheckRequest, server grpc_health_v1.Health_WatchServer) error {
	return server.Send(h.response())
}

// Handler serves /healthz
func (h *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.Status(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy: " + err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// LoggingInterceptor logs all gRPC requests
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			log.Error("gRPC request failed",
				zap.String("method", info.FullMethod),
				zap.Error(err),
			)
		} else {
			log.Debug("gRPC request completed",
				zap.String("method", info.FullMethod),
			)
		}
		return resp, err
	}
}
