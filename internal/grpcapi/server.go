package grpcapi

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"meeting-booking-api/internal/booking"
	"meeting-booking-api/internal/logger"
	"meeting-booking-api/internal/validator"
)

const (
	ServiceName           = "meeting.v1.MeetingService"
	ScheduleMeetingMethod = "/" + ServiceName + "/ScheduleMeeting"

	bookingFailedMessage = "The meeting could not be booked."
)

type MeetingServiceServer interface {
	ScheduleMeeting(context.Context, *ScheduleMeetingRequest) (*ScheduleMeetingResponse, error)
}

func scheduleMeetingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ScheduleMeetingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MeetingServiceServer).ScheduleMeeting(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ScheduleMeetingMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MeetingServiceServer).ScheduleMeeting(ctx, req.(*ScheduleMeetingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MeetingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ScheduleMeeting",
			Handler:    scheduleMeetingHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "meeting/v1/meeting.proto",
}

func RegisterMeetingServiceServer(s grpc.ServiceRegistrar, srv MeetingServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// NewServer builds a grpc.Server that speaks the Codec and carries the given
// interceptors.
func NewServer(interceptors ...grpc.UnaryServerInterceptor) *grpc.Server {
	return grpc.NewServer(
		grpc.ForceServerCodec(Codec{}),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
}

type Handler struct {
	service   *booking.Service
	validator *validator.MeetingValidator
	log       *logger.Logger
}

func NewHandler(service *booking.Service, v *validator.MeetingValidator, log *logger.Logger) *Handler {
	return &Handler{service: service, validator: v, log: log}
}

func (h *Handler) ScheduleMeeting(ctx context.Context, req *ScheduleMeetingRequest) (*ScheduleMeetingResponse, error) {
	in := &validator.MeetingRequest{
		UserIDs:     req.UserIDs,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MeetingName: req.MeetingName,
	}
	if err := h.validator.Validate(in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	br, err := in.ToBookingRequest()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := h.service.ScheduleMeeting(ctx, br); err != nil {
		var ce *booking.ConflictError
		if errors.As(err, &ce) {
			return nil, status.Error(codes.AlreadyExists, ce.Error())
		}
		return nil, status.Error(codes.Internal, bookingFailedMessage)
	}

	return &ScheduleMeetingResponse{Result: booking.SuccessMessage}, nil
}
