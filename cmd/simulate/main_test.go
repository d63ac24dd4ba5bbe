package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperationMetrics(t *testing.T) {
	var om OperationMetrics
	om.Record(10*time.Millisecond, http.StatusCreated)
	om.Record(30*time.Millisecond, http.StatusConflict)
	om.Record(20*time.Millisecond, http.StatusConflict)
	om.Record(40*time.Millisecond, http.StatusUnprocessableEntity)
	om.Record(50*time.Millisecond, 0)

	assert.EqualValues(t, 5, om.Total)
	assert.EqualValues(t, 1, om.Success)
	assert.EqualValues(t, 2, om.Conflict)
	assert.EqualValues(t, 1, om.Rejected)
	assert.EqualValues(t, 1, om.Error)

	avg, min, max, p50, p95 := om.Stats()
	assert.Equal(t, 30*time.Millisecond, avg)
	assert.Equal(t, 10*time.Millisecond, min)
	assert.Equal(t, 50*time.Millisecond, max)
	assert.Equal(t, 30*time.Millisecond, p50)
	assert.Equal(t, 50*time.Millisecond, p95)
}

func TestValidateConfig(t *testing.T) {
	ok := SimConfig{PostgresDSN: "postgres://x", Rounds: 1, Contenders: 2, DoctorRatio: 0.5}
	assert.NoError(t, validateConfig(ok))

	noDSN := ok
	noDSN.PostgresDSN = ""
	assert.Error(t, validateConfig(noDSN))

	badRatio := ok
	badRatio.DoctorRatio = 1.5
	assert.Error(t, validateConfig(badRatio))
}
