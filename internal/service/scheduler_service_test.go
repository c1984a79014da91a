package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildDailySpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "03:00", want: "0 0 3 * * *"},
		{in: "9:05", want: "0 5 9 * * *"},
		{in: "23:59", want: "0 59 23 * * *"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "1:2:3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := buildDailySpec(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchedulerService_Registers(t *testing.T) {
	s := NewSchedulerService(context.Background(), time.UTC, zap.NewNop())

	_, err := s.ScheduleHourly("sweep", func(context.Context) error { return nil })
	require.NoError(t, err)
	_, err = s.ScheduleDaily("03:00", "purge", func(context.Context) error { return nil })
	require.NoError(t, err)
	_, err = s.ScheduleDaily("bad", "purge", func(context.Context) error { return nil })
	assert.Error(t, err)

	entries := s.cron.Entries()
	require.Len(t, entries, 2)
	next := entries[0].Schedule.Next(time.Date(2026, time.May, 10, 12, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, time.May, 10, 13, 0, 0, 0, time.UTC), next)
}

func TestSchedulerService_WrapPassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "sweep")
	s := NewSchedulerService(ctx, time.UTC, zap.NewNop())

	var got any
	s.wrap("job", func(ctx context.Context) error {
		got = ctx.Value(key{})
		return errors.New("portal down")
	})()

	assert.Equal(t, "sweep", got)
}
