package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/pkg/dbutil"
	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
)

var patientColumns = []string{"id", "name", "date_of_birth", "medical_record_number", "department", "assigned_doctor_id", "is_active", "ctime", "mtime"}

// ListPatientsOpts narrows a patient listing. IDs, when non-nil, restricts
// the result to that allowlist; an empty non-nil slice yields no rows.
type ListPatientsOpts struct {
	Department string
	DoctorID   string
	IDs        []string
	ActiveOnly bool
	Offset     uint
	Limit      uint
}

type PatientRepo struct {
	db *sql.DB
}

func NewPatientRepo(db *sql.DB) *PatientRepo {
	return &PatientRepo{db: db}
}

func scanPatient(scanner interface{ Scan(...interface{}) error }) (*model.Patient, error) {
	var patient model.Patient
	var doctorID sql.NullString
	if err := scanner.Scan(&patient.ID, &patient.Name, &patient.DateOfBirth, &patient.MedicalRecordNumber,
		&patient.Department, &doctorID, &patient.IsActive, &patient.Ctime, &patient.Mtime); err != nil {
		return nil, err
	}
	patient.AssignedDoctorID = doctorID.String
	return &patient, nil
}

func (r *PatientRepo) Create(ctx context.Context, patient *model.Patient) error {
	data := map[string]interface{}{
		"id":                    patient.ID,
		"name":                  patient.Name,
		"date_of_birth":         patient.DateOfBirth,
		"medical_record_number": patient.MedicalRecordNumber,
		"department":            patient.Department,
		"assigned_doctor_id":    nullable(patient.AssignedDoctorID),
		"is_active":             patient.IsActive,
		"ctime":                 patient.Ctime,
		"mtime":                 patient.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("patients", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *PatientRepo) GetByID(ctx context.Context, patientID string) (*model.Patient, error) {
	sqlStr, args, err := builder.BuildSelect("patients", map[string]interface{}{"id": patientID}, patientColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanPatient(rows)
}

func (r *PatientRepo) GetByMRN(ctx context.Context, mrn string) (*model.Patient, error) {
	sqlStr, args, err := builder.BuildSelect("patients", map[string]interface{}{"medical_record_number": mrn}, patientColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanPatient(rows)
}

func (r *PatientRepo) List(ctx context.Context, opts ListPatientsOpts) ([]*model.Patient, error) {
	if opts.IDs != nil && len(opts.IDs) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{
		"_orderby": "ctime desc",
	}
	if opts.Department != "" {
		where["department"] = opts.Department
	}
	if opts.DoctorID != "" {
		where["assigned_doctor_id"] = opts.DoctorID
	}
	if opts.IDs != nil {
		where["id in"] = opts.IDs
	}
	if opts.ActiveOnly {
		where["is_active"] = true
	}
	if opts.Limit > 0 {
		where["_limit"] = []uint{opts.Offset, opts.Limit}
	}
	sqlStr, args, err := builder.BuildSelect("patients", where, patientColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var patients []*model.Patient
	for rows.Next() {
		patient, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, patient)
	}
	return patients, rows.Err()
}

func (r *PatientRepo) Update(ctx context.Context, patientID string, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("patients", map[string]interface{}{"id": patientID}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
