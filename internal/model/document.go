package model

type Document struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	DocumentType string `json:"document_type"`
	PatientID    string `json:"patient_id,omitempty"`
	Department   string `json:"department"`
	CreatedByID  string `json:"created_by_id"`
	IsSensitive  bool   `json:"is_sensitive"`
	Ctime        int64  `json:"ctime"`
	Mtime        int64  `json:"mtime"`
}
