package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/carebridge/internal/authz"
	"github.com/carebridge/carebridge/internal/model"
	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
	"github.com/carebridge/carebridge/internal/repo"
)

func newPatientTestService(t *testing.T) (*PatientService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	patients := repo.NewPatientRepo(db)
	users := repo.NewUserRepo(db)
	documents := repo.NewDocumentRepo(db)
	policy := authz.NewClient("", "", time.Second)
	syncer := authz.NewSyncer(policy, users, patients, documents)
	return NewPatientService(patients, users, policy, syncer), mock
}

func TestPatientCreateRejectsBadBirthDate(t *testing.T) {
	svc, _ := newPatientTestService(t)
	admin := &model.User{ID: "a", Role: model.RoleAdmin, IsActive: true}

	for _, dob := range []string{
		"definitely-not-a-date",
		"2020-13-40",
		"01/02/2020",
		"2020-1-2",
	} {
		_, err := svc.Create(context.Background(), admin, &CreatePatientRequest{
			Name:                "Jane Roe",
			MedicalRecordNumber: "MRN-1",
			DateOfBirth:         dob,
		})
		require.ErrorIs(t, err, appErr.ErrInvalid, dob)
	}
}

func TestPatientCreateAcceptsISOBirthDate(t *testing.T) {
	svc, mock := newPatientTestService(t)
	admin := &model.User{ID: "a", Role: model.RoleAdmin, IsActive: true}
	mock.ExpectExec("INSERT INTO patients").WillReturnResult(sqlmock.NewResult(0, 1))

	patient, err := svc.Create(context.Background(), admin, &CreatePatientRequest{
		Name:                "Jane Roe",
		MedicalRecordNumber: "MRN-1",
		DateOfBirth:         "1984-02-29",
	})
	require.NoError(t, err)
	require.Equal(t, "1984-02-29", patient.DateOfBirth)
}
