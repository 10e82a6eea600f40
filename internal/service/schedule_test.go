package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"example.com/safegear/services/ppe/internal/model"
)

func newTestScheduleService() *scheduleService {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &scheduleService{log: log}
}

func TestCreateScheduleValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduleService()

	line := []ScheduleItemRequest{{ItemID: uuid.New(), Quantity: 1}}

	cases := []struct {
		name string
		req  *CreateScheduleRequest
	}{
		{
			"unknown frequency",
			&CreateScheduleRequest{Name: "x", Frequency: "SOMETIMES", AssignmentMode: model.AssignAll, Items: line},
		},
		{
			"no items",
			&CreateScheduleRequest{Name: "x", Frequency: model.FrequencyMonthly, AssignmentMode: model.AssignAll},
		},
		{
			"zero quantity line",
			&CreateScheduleRequest{Name: "x", Frequency: model.FrequencyMonthly, AssignmentMode: model.AssignAll,
				Items: []ScheduleItemRequest{{ItemID: uuid.New(), Quantity: 0}}},
		},
		{
			"quantity above cap",
			&CreateScheduleRequest{Name: "x", Frequency: model.FrequencyMonthly, AssignmentMode: model.AssignAll,
				Items: []ScheduleItemRequest{{ItemID: uuid.New(), Quantity: 101}}},
		},
		{
			"specific without workers",
			&CreateScheduleRequest{Name: "x", Frequency: model.FrequencyMonthly, AssignmentMode: model.AssignSpecific, Items: line},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Create(ctx, tc.req)
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
		})
	}
}
