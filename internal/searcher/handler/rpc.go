package handler

import (
	"context"
	"encoding/json"

	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/proto"
)

// RegisterRPC exposes the search service on s for remote connectors.
// ready reports whether the server should answer SERVING to health checks.
func RegisterRPC(s *grpc.Server, svc *Service, ready func() bool) {
	s.Register(proto.MethodSearch, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.SearchRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, apperrors.Invalidf("invalid search request: %v", err)
		}
		return svc.Search(ctx, &req)
	})
	s.Register(proto.MethodStats, func(ctx context.Context, raw json.RawMessage) (any, error) {
		return svc.Stats(), nil
	})
	s.Register(proto.MethodHealth, func(ctx context.Context, raw json.RawMessage) (any, error) {
		status := "SERVING"
		if ready != nil && !ready() {
			status = "NOT_SERVING"
		}
		return &proto.HealthCheckResponse{Status: status}, nil
	})
}
