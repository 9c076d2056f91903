package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/pkg/errcode"
)

func TestPatientLifecycle(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()

	admin := env.seedUser(t, model.RoleAdmin, "administration", "secret-pass")
	token := env.login(t, admin.Username, "secret-pass")

	mrn := "MRN-" + newTestID()[:8]
	resp := env.do(t, http.MethodPost, "/api/v1/patients", token, map[string]interface{}{
		"name":                  "Jordan Blake",
		"medical_record_number": mrn,
		"department":            "cardiology",
	})
	require.Zero(t, resp.Code, resp.Message)

	var created model.Patient
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, mrn, created.MedicalRecordNumber)

	resp = env.do(t, http.MethodGet, "/api/v1/patients/"+created.ID, token, nil)
	require.Zero(t, resp.Code, resp.Message)

	resp = env.do(t, http.MethodGet, "/api/v1/patients?department=cardiology", token, nil)
	require.Zero(t, resp.Code, resp.Message)
	var listed []*model.Patient
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	found := false
	for _, p := range listed {
		if p.ID == created.ID {
			found = true
		}
	}
	require.True(t, found)

	resp = env.do(t, http.MethodDelete, "/api/v1/patients/"+created.ID, token, nil)
	require.Zero(t, resp.Code, resp.Message)
}

func TestPatientCreateForbiddenForNurse(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()

	nurse := env.seedUser(t, model.RoleNurse, "cardiology", "secret-pass")
	token := env.login(t, nurse.Username, "secret-pass")

	resp := env.do(t, http.MethodPost, "/api/v1/patients", token, map[string]interface{}{
		"name":                  "Jordan Blake",
		"medical_record_number": "MRN-" + newTestID()[:8],
	})
	require.EqualValues(t, errcode.ErrForbidden, resp.Code)
}

// With the policy endpoint unreachable, a doctor sees only assigned
// patients.
func TestPatientFallbackVisibility(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()

	admin := env.seedUser(t, model.RoleAdmin, "administration", "secret-pass")
	doctor := env.seedUser(t, model.RoleDoctor, "cardiology", "secret-pass")
	adminToken := env.login(t, admin.Username, "secret-pass")
	doctorToken := env.login(t, doctor.Username, "secret-pass")

	resp := env.do(t, http.MethodPost, "/api/v1/patients", adminToken, map[string]interface{}{
		"name":                  "Assigned Patient",
		"medical_record_number": "MRN-" + newTestID()[:8],
		"department":            "cardiology",
		"assigned_doctor_id":    doctor.ID,
	})
	require.Zero(t, resp.Code, resp.Message)
	var assigned model.Patient
	require.NoError(t, json.Unmarshal(resp.Data, &assigned))

	resp = env.do(t, http.MethodPost, "/api/v1/patients", adminToken, map[string]interface{}{
		"name":                  "Other Patient",
		"medical_record_number": "MRN-" + newTestID()[:8],
		"department":            "oncology",
	})
	require.Zero(t, resp.Code, resp.Message)
	var other model.Patient
	require.NoError(t, json.Unmarshal(resp.Data, &other))

	resp = env.do(t, http.MethodGet, "/api/v1/patients", doctorToken, nil)
	require.Zero(t, resp.Code, resp.Message)
	var listed []*model.Patient
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	for _, p := range listed {
		require.Equal(t, assigned.ID, p.ID)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/patients/"+other.ID, doctorToken, nil)
	require.EqualValues(t, errcode.ErrForbidden, resp.Code)
}
