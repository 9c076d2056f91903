package handler_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/pkg/errcode"
)

func TestDocumentLifecycle(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()

	admin := env.seedUser(t, model.RoleAdmin, "administration", "secret-pass")
	token := env.login(t, admin.Username, "secret-pass")

	resp := env.do(t, http.MethodPost, "/api/v1/documents", token, map[string]interface{}{
		"title":         "Discharge Summary",
		"content":       "# Summary\n\nPatient discharged in stable condition.",
		"document_type": "discharge_summary",
		"department":    "cardiology",
	})
	require.Zero(t, resp.Code, resp.Message)

	var created model.Document
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, admin.ID, created.CreatedByID)

	resp = env.do(t, http.MethodGet, "/api/v1/documents/"+created.ID, token, nil)
	require.Zero(t, resp.Code, resp.Message)

	newTitle := "Amended Discharge Summary"
	resp = env.do(t, http.MethodPut, "/api/v1/documents/"+created.ID, token, map[string]interface{}{
		"title": newTitle,
	})
	require.Zero(t, resp.Code, resp.Message)
	var updated model.Document
	require.NoError(t, json.Unmarshal(resp.Data, &updated))
	require.Equal(t, newTitle, updated.Title)

	// No embedder is wired, so the counters stay at zero until the
	// sweep runs with a live provider.
	resp = env.do(t, http.MethodGet, "/api/v1/documents/"+created.ID+"/embeddings/status", token, nil)
	require.Zero(t, resp.Code, resp.Message)

	resp = env.do(t, http.MethodDelete, "/api/v1/documents/"+created.ID, token, nil)
	require.Zero(t, resp.Code, resp.Message)

	resp = env.do(t, http.MethodGet, "/api/v1/documents/"+created.ID, token, nil)
	require.EqualValues(t, errcode.ErrNotFound, resp.Code)
}

func TestDocumentUpload(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()

	admin := env.seedUser(t, model.RoleAdmin, "administration", "secret-pass")
	token := env.login(t, admin.Username, "secret-pass")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "note.md")
	require.NoError(t, err)
	_, err = part.Write([]byte("# Note\n\nUploaded clinical note."))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("document_type", "note"))
	require.NoError(t, writer.WriteField("department", "cardiology"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Zero(t, resp.Code, resp.Message)

	var doc model.Document
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	require.Equal(t, "note.md", doc.Title)
	require.Contains(t, doc.Content, "Uploaded clinical note.")
}

func TestSensitiveDocumentDoctorFallbackAccess(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()

	admin := env.seedUser(t, model.RoleAdmin, "administration", "secret-pass")
	assigned := env.seedUser(t, model.RoleDoctor, "cardiology", "secret-pass")
	colleague := env.seedUser(t, model.RoleDoctor, "cardiology", "secret-pass")
	adminToken := env.login(t, admin.Username, "secret-pass")
	assignedToken := env.login(t, assigned.Username, "secret-pass")
	colleagueToken := env.login(t, colleague.Username, "secret-pass")

	resp := env.do(t, http.MethodPost, "/api/v1/patients", adminToken, map[string]interface{}{
		"name":                  "Pat Doe",
		"medical_record_number": newTestID(),
		"department":            "cardiology",
		"assigned_doctor_id":    assigned.ID,
	})
	require.Zero(t, resp.Code, resp.Message)
	var patient model.Patient
	require.NoError(t, json.Unmarshal(resp.Data, &patient))

	resp = env.do(t, http.MethodPost, "/api/v1/documents", adminToken, map[string]interface{}{
		"title":         "Psych Evaluation",
		"content":       "Restricted content.",
		"document_type": "evaluation",
		"patient_id":    patient.ID,
		"department":    "cardiology",
		"is_sensitive":  true,
	})
	require.Zero(t, resp.Code, resp.Message)
	var sensitive model.Document
	require.NoError(t, json.Unmarshal(resp.Data, &sensitive))

	// The patient's doctor keeps access while the policy is down.
	resp = env.do(t, http.MethodGet, "/api/v1/documents/"+sensitive.ID, assignedToken, nil)
	require.Zero(t, resp.Code, resp.Message)

	// A colleague in the same department does not.
	resp = env.do(t, http.MethodGet, "/api/v1/documents/"+sensitive.ID, colleagueToken, nil)
	require.EqualValues(t, errcode.ErrForbidden, resp.Code)

	resp = env.do(t, http.MethodGet, "/api/v1/documents?department=cardiology", colleagueToken, nil)
	require.Zero(t, resp.Code, resp.Message)
	var listed []*model.Document
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	for _, doc := range listed {
		require.NotEqual(t, sensitive.ID, doc.ID)
	}
}

func TestSensitiveDocumentHiddenFromNurse(t *testing.T) {
	env, cleanup := setupRouter(t)
	defer cleanup()

	admin := env.seedUser(t, model.RoleAdmin, "administration", "secret-pass")
	nurse := env.seedUser(t, model.RoleNurse, "cardiology", "secret-pass")
	adminToken := env.login(t, admin.Username, "secret-pass")
	nurseToken := env.login(t, nurse.Username, "secret-pass")

	resp := env.do(t, http.MethodPost, "/api/v1/documents", adminToken, map[string]interface{}{
		"title":         "Psych Evaluation",
		"content":       "Restricted content.",
		"document_type": "evaluation",
		"department":    "cardiology",
		"is_sensitive":  true,
	})
	require.Zero(t, resp.Code, resp.Message)
	var sensitive model.Document
	require.NoError(t, json.Unmarshal(resp.Data, &sensitive))

	resp = env.do(t, http.MethodGet, "/api/v1/documents/"+sensitive.ID, nurseToken, nil)
	require.EqualValues(t, errcode.ErrForbidden, resp.Code)

	resp = env.do(t, http.MethodGet, "/api/v1/documents?department=cardiology", nurseToken, nil)
	require.Zero(t, resp.Code, resp.Message)
	var listed []*model.Document
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	for _, doc := range listed {
		require.NotEqual(t, sensitive.ID, doc.ID)
	}
}
