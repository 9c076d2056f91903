package authz

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/repo"
)

type userLister interface {
	ListActiveByRole(ctx context.Context, role string) ([]*model.User, error)
	ListActiveByDepartment(ctx context.Context, department string) ([]*model.User, error)
	ListActiveByRoleAndDepartment(ctx context.Context, role, department string) ([]*model.User, error)
}

type patientLister interface {
	GetByID(ctx context.Context, patientID string) (*model.Patient, error)
	List(ctx context.Context, opts repo.ListPatientsOpts) ([]*model.Patient, error)
}

type documentLister interface {
	List(ctx context.Context, opts repo.ListDocumentsOpts) ([]*model.Document, error)
}

// Syncer mirrors database state into policy-service facts. Every write
// path calls it after committing; callers treat failures as non-fatal
// and log them, so a policy outage never blocks a record write. The
// periodic full resync closes whatever drift that leaves behind.
type Syncer struct {
	client    Client
	users     userLister
	patients  patientLister
	documents documentLister
}

func NewSyncer(client Client, users userLister, patients patientLister, documents documentLister) *Syncer {
	return &Syncer{client: client, users: users, patients: patients, documents: documents}
}

// SyncAdminGlobalAccess grants an admin the organization-wide role.
func (s *Syncer) SyncAdminGlobalAccess(ctx context.Context, user *model.User) error {
	if user.Role != model.RoleAdmin {
		return nil
	}
	return s.client.Insert(ctx, RoleFact(user.ID, RoleAdmin, TypeOrganization, DefaultOrganization))
}

// SyncPatientAccess recomputes every fact attached to a patient: the
// assigned doctor's role plus one department_nurse fact per active
// nurse in the patient's department.
func (s *Syncer) SyncPatientAccess(ctx context.Context, patient *model.Patient) error {
	if err := s.client.Delete(ctx, ResourcePattern(TypePatient, patient.ID)); err != nil {
		return fmt.Errorf("clear patient facts: %w", err)
	}
	var facts []Fact
	if patient.AssignedDoctorID != "" {
		facts = append(facts, RoleFact(patient.AssignedDoctorID, RoleAssignedDoctor, TypePatient, patient.ID))
	}
	if patient.Department != "" {
		nurses, err := s.users.ListActiveByRoleAndDepartment(ctx, model.RoleNurse, patient.Department)
		if err != nil {
			return fmt.Errorf("list department nurses: %w", err)
		}
		for _, nurse := range nurses {
			facts = append(facts, RoleFact(nurse.ID, RoleDepartmentNurse, TypePatient, patient.ID))
		}
	}
	return s.client.Insert(ctx, facts...)
}

func (s *Syncer) RemovePatientAccess(ctx context.Context, patientID string) error {
	return s.client.Delete(ctx, ResourcePattern(TypePatient, patientID))
}

// SyncDocumentAccess recomputes every fact attached to a document: the
// creator's owner role, the patient's assigned doctor, and one
// department_staff fact per active user in the document's department.
func (s *Syncer) SyncDocumentAccess(ctx context.Context, doc *model.Document) error {
	if err := s.client.Delete(ctx, ResourcePattern(TypeDocument, doc.ID)); err != nil {
		return fmt.Errorf("clear document facts: %w", err)
	}
	var facts []Fact
	if doc.CreatedByID != "" {
		facts = append(facts, RoleFact(doc.CreatedByID, RoleOwner, TypeDocument, doc.ID))
	}
	if doc.PatientID != "" {
		patient, err := s.patients.GetByID(ctx, doc.PatientID)
		if err != nil {
			return fmt.Errorf("load document patient: %w", err)
		}
		if patient.AssignedDoctorID != "" {
			facts = append(facts, RoleFact(patient.AssignedDoctorID, RolePatientDoctor, TypeDocument, doc.ID))
		}
	}
	if doc.Department != "" {
		staff, err := s.users.ListActiveByDepartment(ctx, doc.Department)
		if err != nil {
			return fmt.Errorf("list department staff: %w", err)
		}
		for _, member := range staff {
			if member.ID == doc.CreatedByID {
				continue
			}
			facts = append(facts, RoleFact(member.ID, RoleDepartmentStaff, TypeDocument, doc.ID))
		}
	}
	return s.client.Insert(ctx, facts...)
}

func (s *Syncer) RemoveDocumentAccess(ctx context.Context, documentID string) error {
	return s.client.Delete(ctx, ResourcePattern(TypeDocument, documentID))
}

// SyncEmbeddingAccess links chunks to their parent document so the
// policy can resolve chunk access through the document's facts.
func (s *Syncer) SyncEmbeddingAccess(ctx context.Context, documentID string, embeddingIDs []string) error {
	facts := make([]Fact, 0, len(embeddingIDs))
	for _, id := range embeddingIDs {
		facts = append(facts, RelationFact(TypeEmbedding, id, RelationDocument, TypeDocument, documentID))
	}
	return s.client.Insert(ctx, facts...)
}

func (s *Syncer) RemoveEmbeddingAccessByDocument(ctx context.Context, documentID string) error {
	return s.client.Delete(ctx, Fact{
		Predicate: PredicateHasRelation,
		Args:      []*Value{nil, nil, NewValue(TypeDocument, documentID)},
	})
}

// SyncUserAccess recomputes every fact granted to a user after a role
// or department change. Old grants are wiped first, then the admin
// fact and the patient and document facts the new attributes imply.
func (s *Syncer) SyncUserAccess(ctx context.Context, user *model.User) error {
	if err := s.client.Delete(ctx, ActorPattern(user.ID)); err != nil {
		return fmt.Errorf("clear user facts: %w", err)
	}
	if !user.IsActive {
		return nil
	}
	var facts []Fact
	if user.Role == model.RoleAdmin {
		facts = append(facts, RoleFact(user.ID, RoleAdmin, TypeOrganization, DefaultOrganization))
	}
	if user.Role == model.RoleDoctor {
		assigned, err := s.patients.List(ctx, repo.ListPatientsOpts{DoctorID: user.ID, ActiveOnly: true})
		if err != nil {
			return fmt.Errorf("list assigned patients: %w", err)
		}
		for _, patient := range assigned {
			facts = append(facts, RoleFact(user.ID, RoleAssignedDoctor, TypePatient, patient.ID))
		}
	}
	if user.Role == model.RoleNurse && user.Department != "" {
		patients, err := s.patients.List(ctx, repo.ListPatientsOpts{Department: user.Department, ActiveOnly: true})
		if err != nil {
			return fmt.Errorf("list department patients: %w", err)
		}
		for _, patient := range patients {
			facts = append(facts, RoleFact(user.ID, RoleDepartmentNurse, TypePatient, patient.ID))
		}
	}
	if user.Department != "" {
		docs, err := s.documents.List(ctx, repo.ListDocumentsOpts{Department: user.Department})
		if err != nil {
			return fmt.Errorf("list department documents: %w", err)
		}
		for _, doc := range docs {
			role := RoleDepartmentStaff
			if doc.CreatedByID == user.ID {
				role = RoleOwner
			}
			facts = append(facts, RoleFact(user.ID, role, TypeDocument, doc.ID))
		}
	}
	return s.client.Insert(ctx, facts...)
}

// FullResync rebuilds the complete fact set from the database. It runs
// on a schedule to bound the drift window left by best-effort syncs.
func (s *Syncer) FullResync(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	var failed int

	admins, err := s.users.ListActiveByRole(ctx, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	for _, admin := range admins {
		if err := s.SyncAdminGlobalAccess(ctx, admin); err != nil {
			failed++
			logger.Warn("resync admin facts failed", zap.String("user_id", admin.ID), zap.Error(err))
		}
	}

	patients, err := s.patients.List(ctx, repo.ListPatientsOpts{})
	if err != nil {
		return fmt.Errorf("list patients: %w", err)
	}
	for _, patient := range patients {
		if err := s.SyncPatientAccess(ctx, patient); err != nil {
			failed++
			logger.Warn("resync patient facts failed", zap.String("patient_id", patient.ID), zap.Error(err))
		}
	}

	docs, err := s.documents.List(ctx, repo.ListDocumentsOpts{})
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		if err := s.SyncDocumentAccess(ctx, doc); err != nil {
			failed++
			logger.Warn("resync document facts failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}

	logger.Info("fact resync completed",
		zap.Int("admins", len(admins)),
		zap.Int("patients", len(patients)),
		zap.Int("documents", len(docs)),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		return fmt.Errorf("fact resync finished with %d failures", failed)
	}
	return nil
}
