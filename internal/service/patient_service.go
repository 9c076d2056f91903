package service

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/authz"
	"github.com/carebridge/carebridge/internal/model"
	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
	"github.com/carebridge/carebridge/internal/pkg/timeutil"
	"github.com/carebridge/carebridge/internal/repo"
)

type PatientService struct {
	patients *repo.PatientRepo
	users    *repo.UserRepo
	policy   authz.Client
	syncer   *authz.Syncer
}

func NewPatientService(patients *repo.PatientRepo, users *repo.UserRepo, policy authz.Client, syncer *authz.Syncer) *PatientService {
	return &PatientService{patients: patients, users: users, policy: policy, syncer: syncer}
}

func patientResource(patient *model.Patient) authz.Resource {
	return authz.Resource{
		Department:       patient.Department,
		AssignedDoctorID: patient.AssignedDoctorID,
	}
}

type CreatePatientRequest struct {
	Name                string `json:"name"`
	DateOfBirth         string `json:"date_of_birth"`
	MedicalRecordNumber string `json:"medical_record_number"`
	Department          string `json:"department"`
	AssignedDoctorID    string `json:"assigned_doctor_id"`
}

func (s *PatientService) Create(ctx context.Context, actor *model.User, req *CreatePatientRequest) (*model.Patient, error) {
	if actor.Role == model.RoleNurse {
		return nil, appErr.ErrForbidden
	}
	req.Name = strings.TrimSpace(req.Name)
	req.MedicalRecordNumber = strings.TrimSpace(req.MedicalRecordNumber)
	if req.Name == "" || req.MedicalRecordNumber == "" {
		return nil, appErr.ErrInvalid
	}
	req.DateOfBirth = strings.TrimSpace(req.DateOfBirth)
	if !validBirthDate(req.DateOfBirth) {
		return nil, appErr.ErrInvalid
	}
	req.AssignedDoctorID = strings.TrimSpace(req.AssignedDoctorID)
	if err := s.validateDoctor(ctx, req.AssignedDoctorID); err != nil {
		return nil, err
	}
	now := timeutil.NowUnix()
	patient := &model.Patient{
		ID:                  newID(),
		Name:                req.Name,
		DateOfBirth:         req.DateOfBirth,
		MedicalRecordNumber: req.MedicalRecordNumber,
		Department:          strings.TrimSpace(req.Department),
		AssignedDoctorID:    strings.TrimSpace(req.AssignedDoctorID),
		IsActive:            true,
		Ctime:               now,
		Mtime:               now,
	}
	if err := s.patients.Create(ctx, patient); err != nil {
		return nil, err
	}
	if err := s.syncer.SyncPatientAccess(ctx, patient); err != nil {
		logutil.GetLogger(ctx).Warn("sync patient facts failed", zap.String("patient_id", patient.ID), zap.Error(err))
	}
	return patient, nil
}

func (s *PatientService) Get(ctx context.Context, actor *model.User, patientID string) (*model.Patient, error) {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.policy, actor, authz.ActionRead,
		authz.NewValue(authz.TypePatient, patient.ID), patientResource(patient)); err != nil {
		return nil, err
	}
	return patient, nil
}

// List returns the patients the actor may see. The policy service
// provides the allowlist; when it is down the listing degrades to the
// actor's own department or assignments.
func (s *PatientService) List(ctx context.Context, actor *model.User, department string, offset, limit uint) ([]*model.Patient, error) {
	if limit == 0 || limit > 100 {
		limit = 50
	}
	opts := repo.ListPatientsOpts{Department: department, Offset: offset, Limit: limit}
	ids, restricted, err := listAuthorized(ctx, s.policy, actor, authz.ActionRead, authz.TypePatient)
	if err != nil {
		logutil.GetLogger(ctx).Warn("policy service unavailable, listing by role",
			zap.String("user_id", actor.ID), zap.Error(err))
		switch actor.Role {
		case model.RoleDoctor:
			// Assigned patients only; department visibility would need
			// the policy's finer rules.
			opts.DoctorID = actor.ID
		case model.RoleNurse:
			opts.Department = actor.Department
		default:
			return nil, appErr.ErrForbidden
		}
		return s.patients.List(ctx, opts)
	}
	if restricted {
		opts.IDs = ids
		if ids == nil {
			opts.IDs = []string{}
		}
	}
	return s.patients.List(ctx, opts)
}

type UpdatePatientRequest struct {
	Name             *string `json:"name"`
	DateOfBirth      *string `json:"date_of_birth"`
	Department       *string `json:"department"`
	AssignedDoctorID *string `json:"assigned_doctor_id"`
	IsActive         *bool   `json:"is_active"`
}

func (s *PatientService) Update(ctx context.Context, actor *model.User, patientID string, req *UpdatePatientRequest) (*model.Patient, error) {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.policy, actor, authz.ActionWrite,
		authz.NewValue(authz.TypePatient, patient.ID), patientResource(patient)); err != nil {
		return nil, err
	}
	update := map[string]interface{}{
		"mtime": timeutil.NowUnix(),
	}
	accessChanged := false
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErr.ErrInvalid
		}
		update["name"] = name
	}
	if req.DateOfBirth != nil {
		dob := strings.TrimSpace(*req.DateOfBirth)
		if !validBirthDate(dob) {
			return nil, appErr.ErrInvalid
		}
		update["date_of_birth"] = dob
	}
	if req.Department != nil {
		update["department"] = strings.TrimSpace(*req.Department)
		accessChanged = true
	}
	if req.AssignedDoctorID != nil {
		doctorID := strings.TrimSpace(*req.AssignedDoctorID)
		if err := s.validateDoctor(ctx, doctorID); err != nil {
			return nil, err
		}
		update["assigned_doctor_id"] = nullableID(doctorID)
		accessChanged = true
	}
	if req.IsActive != nil {
		update["is_active"] = *req.IsActive
		accessChanged = true
	}
	if err := s.patients.Update(ctx, patientID, update); err != nil {
		return nil, err
	}
	patient, err = s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if accessChanged {
		if err := s.syncer.SyncPatientAccess(ctx, patient); err != nil {
			logutil.GetLogger(ctx).Warn("sync patient facts failed", zap.String("patient_id", patient.ID), zap.Error(err))
		}
	}
	return patient, nil
}

// Deactivate soft-deletes the record and revokes its facts.
func (s *PatientService) Deactivate(ctx context.Context, actor *model.User, patientID string) error {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return err
	}
	if err := authorize(ctx, s.policy, actor, authz.ActionWrite,
		authz.NewValue(authz.TypePatient, patient.ID), patientResource(patient)); err != nil {
		return err
	}
	update := map[string]interface{}{
		"is_active": false,
		"mtime":     timeutil.NowUnix(),
	}
	if err := s.patients.Update(ctx, patientID, update); err != nil {
		return err
	}
	if err := s.syncer.RemovePatientAccess(ctx, patientID); err != nil {
		logutil.GetLogger(ctx).Warn("remove patient facts failed", zap.String("patient_id", patientID), zap.Error(err))
	}
	return nil
}

// FindByMRN serves the agent's patient lookup tool. The lookup runs
// under the requesting user's authority, so the tool cannot see more
// than the user could through the API.
func (s *PatientService) FindByMRN(ctx context.Context, userID, mrn string) (*model.Patient, error) {
	actor, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	patient, err := s.patients.GetByMRN(ctx, mrn)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.policy, actor, authz.ActionRead,
		authz.NewValue(authz.TypePatient, patient.ID), patientResource(patient)); err != nil {
		return nil, err
	}
	return patient, nil
}

// validateDoctor requires an assignment target to be an active doctor.
// An empty id means unassigned and is always valid.
func (s *PatientService) validateDoctor(ctx context.Context, doctorID string) error {
	if doctorID == "" {
		return nil
	}
	doctor, err := s.users.GetByID(ctx, doctorID)
	if err != nil {
		return appErr.ErrInvalid
	}
	if doctor.Role != model.RoleDoctor || !doctor.IsActive {
		return appErr.ErrInvalid
	}
	return nil
}

// validBirthDate accepts an ISO date or an empty value for unknown.
func validBirthDate(dob string) bool {
	if dob == "" {
		return true
	}
	_, err := time.Parse("2006-01-02", dob)
	return err == nil
}

func nullableID(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
