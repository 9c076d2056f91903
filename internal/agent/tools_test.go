package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/carebridge/internal/model"
)

type fakeDirectory struct {
	patient *model.Patient
	gotUser string
}

func (f *fakeDirectory) FindByMRN(ctx context.Context, userID, mrn string) (*model.Patient, error) {
	f.gotUser = userID
	return f.patient, nil
}

func TestPatientLookupTool(t *testing.T) {
	dir := &fakeDirectory{patient: &model.Patient{ID: "p1", Name: "Jordan Doe", MedicalRecordNumber: "MRN-001"}}
	tool := NewPatientLookupTool(dir, "user-1")

	out, err := tool.Call(context.Background(), json.RawMessage(`{"mrn":"MRN-001"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Jordan Doe")
	assert.Equal(t, "user-1", dir.gotUser)

	_, err = tool.Call(context.Background(), json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestVisitCostTool(t *testing.T) {
	tool := NewVisitCostTool()

	out, err := tool.Call(context.Background(), json.RawMessage(`{"visit_type":"checkup","insurance_coverage":0.8}`))
	require.NoError(t, err)

	var res map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.InDelta(t, 150, res["base_cost"], 0.001)
	assert.InDelta(t, 120, res["insured_share"], 0.001)
	assert.InDelta(t, 30, res["patient_share"], 0.001)

	_, err = tool.Call(context.Background(), json.RawMessage(`{"visit_type":"spa"}`))
	assert.Error(t, err)

	_, err = tool.Call(context.Background(), json.RawMessage(`{"visit_type":"checkup","insurance_coverage":1.5}`))
	assert.Error(t, err)
}
