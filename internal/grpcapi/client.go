package grpcapi

import (
	"context"

	"google.golang.org/grpc"
)

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ScheduleMeeting(ctx context.Context, in *ScheduleMeetingRequest, opts ...grpc.CallOption) (*ScheduleMeetingResponse, error) {
	out := new(ScheduleMeetingResponse)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	if err := c.cc.Invoke(ctx, ScheduleMeetingMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
