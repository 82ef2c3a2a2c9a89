package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-booking-api/internal/logger"
)

func validRequest() *MeetingRequest {
	return &MeetingRequest{
		UserIDs:     []int64{1, 2},
		StartTime:   "2030-01-01 09:00:00",
		EndTime:     "2030-01-01 10:00:00",
		MeetingName: "Standup",
	}
}

func TestValidate(t *testing.T) {
	v := NewMeetingValidator(logger.Discard())

	tests := []struct {
		name      string
		mutate    func(r *MeetingRequest)
		wantField string
	}{
		{name: "valid request", mutate: func(r *MeetingRequest) {}},
		{name: "missing user ids", mutate: func(r *MeetingRequest) { r.UserIDs = nil }, wantField: "user_ids"},
		{name: "empty user ids", mutate: func(r *MeetingRequest) { r.UserIDs = []int64{} }, wantField: "user_ids"},
		{name: "duplicate user ids", mutate: func(r *MeetingRequest) { r.UserIDs = []int64{3, 3} }, wantField: "user_ids"},
		{name: "non-positive user id", mutate: func(r *MeetingRequest) { r.UserIDs = []int64{1, 0} }, wantField: "user_ids[1]"},
		{name: "missing start", mutate: func(r *MeetingRequest) { r.StartTime = "" }, wantField: "start_time"},
		{name: "iso start rejected", mutate: func(r *MeetingRequest) { r.StartTime = "2030-01-01T09:00:00Z" }, wantField: "start_time"},
		{name: "impossible end", mutate: func(r *MeetingRequest) { r.EndTime = "2030-02-30 10:00:00" }, wantField: "end_time"},
		{name: "end before start", mutate: func(r *MeetingRequest) { r.EndTime = "2030-01-01 08:00:00" }, wantField: "end_time"},
		{name: "end equals start", mutate: func(r *MeetingRequest) { r.EndTime = r.StartTime }, wantField: "end_time"},
		{name: "missing name", mutate: func(r *MeetingRequest) { r.MeetingName = "" }, wantField: "meeting_name"},
		{name: "name too long", mutate: func(r *MeetingRequest) {
			r.MeetingName = string(make([]byte, 256))
		}, wantField: "meeting_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			err := v.Validate(req)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.NotEmpty(t, verrs)
			assert.Equal(t, tt.wantField, verrs[0].Field)
			assert.NotEmpty(t, verrs[0].Message)
		})
	}
}

func TestValidateCollectsEveryField(t *testing.T) {
	v := NewMeetingValidator(logger.Discard())

	err := v.Validate(&MeetingRequest{})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)

	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"user_ids", "start_time", "end_time", "meeting_name"}, fields)
	assert.Contains(t, err.Error(), "validation failed: 4 error(s)")
}

func TestToBookingRequest(t *testing.T) {
	req := validRequest()

	br, err := req.ToBookingRequest()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, br.UserIDs)
	assert.Equal(t, "Standup", br.MeetingName)
	assert.Equal(t, time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC), br.StartTime)
	assert.Equal(t, time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC), br.EndTime)

	req.StartTime = "garbage"
	_, err = req.ToBookingRequest()
	assert.Error(t, err)
}
