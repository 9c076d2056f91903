package model

type Patient struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	DateOfBirth         string `json:"date_of_birth"`
	MedicalRecordNumber string `json:"medical_record_number"`
	Department          string `json:"department"`
	AssignedDoctorID    string `json:"assigned_doctor_id"`
	IsActive            bool   `json:"is_active"`
	Ctime               int64  `json:"ctime"`
	Mtime               int64  `json:"mtime"`
}
