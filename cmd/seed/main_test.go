package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDepartmentType(t *testing.T) {
	tests := map[string]string{
		"OPD":                     "opd",
		"Dental Clinic":           "dental_clinic",
		"Obstetrics & Gynecology": "obstetrics_gynecology",
		"Ophthalmology":           "ophthalmology",
	}
	for name, want := range tests {
		assert.Equal(t, want, departmentType(name), name)
	}
}

func TestClinicSeeds(t *testing.T) {
	seeds := clinicSeeds()
	assert.Len(t, seeds, len(clinicNames))
	for _, c := range seeds {
		assert.Equal(t, departmentType(c.Name), c.DepartmentType)
		assert.Nil(t, c.Location, c.Name)
	}
}
