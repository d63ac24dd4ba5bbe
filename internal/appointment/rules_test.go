package appointment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRules_CreateRequest(t *testing.T) {
	rules := NewRules()

	errs := rules.Check(CreateRequest{Date: "2024-06-01", Time: "10:00"})
	assert.Empty(t, errs)

	errs = rules.Check(CreateRequest{})
	byField := errs.ByField()
	assert.Equal(t, []string{"The appointment_date field is required."}, byField["appointment_date"])
	assert.Equal(t, []string{"The appointment_time field is required."}, byField["appointment_time"])

	errs = rules.Check(CreateRequest{
		ClinicID: "nope",
		Date:     "2024-06-01",
		Time:     "10:00",
		Type:     "video",
		Reason:   strings.Repeat("a", MaxReasonLength+1),
	})
	byField = errs.ByField()
	assert.Equal(t, []string{"The clinic_id must be a valid UUID."}, byField["clinic_id"])
	assert.Equal(t, []string{"The selected type is invalid. Allowed: in_person, telemedicine."}, byField["type"])
	assert.Equal(t, []string{"The reason may not be greater than 500 characters."}, byField["reason"])
}

func TestRules_UpdateRequest(t *testing.T) {
	rules := NewRules()

	assert.Empty(t, rules.Check(UpdateRequest{}))
	assert.Empty(t, rules.Check(UpdateRequest{Reason: ptr(""), Status: ptr("cancelled")}))

	errs := rules.Check(UpdateRequest{Date: ptr("tomorrow"), Time: ptr("noon"), Status: ptr("done")})
	require.Len(t, errs, 3)
	byField := errs.ByField()
	assert.Equal(t, []string{"The appointment_date is not a valid date."}, byField["appointment_date"])
	assert.Equal(t, []string{"The appointment_time is not a valid time."}, byField["appointment_time"])
	assert.Contains(t, byField, "status")
}
