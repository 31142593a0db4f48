package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/laurarmit/DogBarkProject/internal/domain"
)

// SensorServiceHandler serves the reading journal over gRPC
type SensorServiceHandler struct {
	repo domain.ReadingRepository
}

// NewSensorServiceHandler creates a new gRPC handler
func NewSensorServiceHandler(repo domain.ReadingRepository) *SensorServiceHandler {
	return &SensorServiceHandler{repo: repo}
}

// GetLatestReading returns the most recent published reading
func (h *SensorServiceHandler) GetLatestReading(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	log.Debug().Msg("GetLatestReading called")

	reading, err := h.repo.GetLatestReading(ctx)
	if errors.Is(err, domain.ErrReadingNotFound) {
		return nil, status.Error(codes.NotFound, "no readings published yet")
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to get latest reading")
		return nil, status.Error(codes.Internal, "failed to get reading")
	}

	return structpb.NewStruct(readingFields(reading))
}

// GetHistory returns readings within time range with statistics
func (h *SensorServiceHandler) GetHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	startUnix, ok := unixField(req, "start_time")
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "start_time is required")
	}
	endUnix, ok := unixField(req, "end_time")
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "end_time is required")
	}
	if endUnix < startUnix {
		return nil, status.Error(codes.InvalidArgument, "end_time is before start_time")
	}

	log.Debug().
		Int64("start", startUnix).
		Int64("end", endUnix).
		Msg("GetHistory called")

	readings, err := h.repo.GetReadingsInRange(ctx, time.Unix(startUnix, 0), time.Unix(endUnix, 0))
	if err != nil {
		log.Error().Err(err).Msg("failed to get readings")
		return nil, status.Error(codes.Internal, "failed to get readings")
	}

	list := make([]any, len(readings))
	for i, r := range readings {
		list[i] = readingFields(r)
	}

	stats := calculateStatistics(readings)

	return structpb.NewStruct(map[string]any{
		"readings":         list,
		"average_decibels": stats.average,
		"min_decibels":     stats.min,
		"max_decibels":     stats.max,
	})
}

// readingFields renders a reading the way it was published, plus its journal ID
func readingFields(r *domain.Reading) map[string]any {
	p := r.Payload()
	return map[string]any{
		"id":        float64(r.ID),
		"device_id": p.DeviceID,
		"timestamp": p.Timestamp,
		"decibels":  p.Decibels,
	}
}

func unixField(s *structpb.Struct, key string) (int64, bool) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return int64(n.NumberValue), true
}

// statistics holds calculated statistics
type statistics struct {
	average float64
	min     float64
	max     float64
}

// calculateStatistics computes stats for a set of readings
func calculateStatistics(readings []*domain.Reading) statistics {
	if len(readings) == 0 {
		return statistics{}
	}

	var sum float64
	min := readings[0].Decibels
	max := readings[0].Decibels

	for _, r := range readings {
		sum += r.Decibels
		if r.Decibels < min {
			min = r.Decibels
		}
		if r.Decibels > max {
			max = r.Decibels
		}
	}

	return statistics{
		average: sum / float64(len(readings)),
		min:     min,
		max:     max,
	}
}
