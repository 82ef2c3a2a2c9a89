package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"meeting-booking-api/internal/grpcapi"
)

func newBookCmd() *cobra.Command {
	var (
		addr    string
		users   []int64
		start   string
		end     string
		name    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a meeting through a running server's gRPC API",
		Example: `  meeting-booking-api book --users 1,2 --start "2030-01-01 10:00:00" \
    --end "2030-01-01 11:00:00" --name "Design review"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := grpcapi.NewClient(conn).ScheduleMeeting(ctx, &grpcapi.ScheduleMeetingRequest{
				UserIDs:     users,
				StartTime:   start,
				EndTime:     end,
				MeetingName: name,
			})
			if err != nil {
				if st, ok := status.FromError(err); ok {
					return fmt.Errorf("%s: %s", st.Code(), st.Message())
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), resp.Result)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "gRPC server address")
	cmd.Flags().Int64SliceVar(&users, "users", nil, "comma-separated user ids")
	cmd.Flags().StringVar(&start, "start", "", "start time, YYYY-MM-DD HH:MM:SS")
	cmd.Flags().StringVar(&end, "end", "", "end time, YYYY-MM-DD HH:MM:SS")
	cmd.Flags().StringVar(&name, "name", "", "meeting name")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("users")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
