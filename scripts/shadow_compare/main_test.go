package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBodiesEqualIgnoresVolatileFields(t *testing.T) {
	a := []byte(`{"status":"success","run_id":"a","timestamp":"2024-01-01T00:00:00Z","timetable":{"days":{"Monday":{"1":[]}}}}`)
	b := []byte(`{"status":"success","run_id":"b","timestamp":"2024-01-02T00:00:00Z","timetable":{"days":{"Monday":{"1":[]}}}}`)
	assert.True(t, bodiesEqual(a, b, defaultIgnored))
	assert.False(t, bodiesEqual(a, b, nil))
}

func TestBodiesEqualNormalizesNumbers(t *testing.T) {
	assert.True(t, bodiesEqual([]byte(`{"n":1.0}`), []byte(`{"n":1}`), nil))
	assert.False(t, bodiesEqual([]byte(`not json`), []byte(`{}`), nil))
}
