package authz

// Facts follow the policy service's triple form: a predicate over typed
// arguments. A nil argument in a delete pattern matches anything.

const (
	PredicateHasRole     = "has_role"
	PredicateHasRelation = "has_relation"
)

const (
	TypeUser         = "User"
	TypePatient      = "Patient"
	TypeDocument     = "Document"
	TypeEmbedding    = "Embedding"
	TypeOrganization = "Organization"
	TypeString       = "String"
)

// DefaultOrganization is the single tenant every global role attaches to.
const DefaultOrganization = "default"

const (
	RoleAdmin           = "admin"
	RoleAssignedDoctor  = "assigned_doctor"
	RoleDepartmentNurse = "department_nurse"
	RoleOwner           = "owner"
	RolePatientDoctor   = "patient_doctor"
	RoleDepartmentStaff = "department_staff"
	RelationDocument    = "document"
)

type Value struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Fact struct {
	Predicate string   `json:"predicate"`
	Args      []*Value `json:"args"`
}

func NewValue(typ, id string) *Value {
	return &Value{Type: typ, ID: id}
}

func RoleFact(userID, role, resourceType, resourceID string) Fact {
	return Fact{
		Predicate: PredicateHasRole,
		Args: []*Value{
			NewValue(TypeUser, userID),
			NewValue(TypeString, role),
			NewValue(resourceType, resourceID),
		},
	}
}

func RelationFact(subjectType, subjectID, relation, objectType, objectID string) Fact {
	return Fact{
		Predicate: PredicateHasRelation,
		Args: []*Value{
			NewValue(subjectType, subjectID),
			NewValue(TypeString, relation),
			NewValue(objectType, objectID),
		},
	}
}

// ResourcePattern matches every fact whose last argument is the given
// resource, regardless of actor or role.
func ResourcePattern(resourceType, resourceID string) Fact {
	return Fact{
		Predicate: PredicateHasRole,
		Args: []*Value{
			nil,
			nil,
			NewValue(resourceType, resourceID),
		},
	}
}

// ActorPattern matches every fact granted to the given user.
func ActorPattern(userID string) Fact {
	return Fact{
		Predicate: PredicateHasRole,
		Args: []*Value{
			NewValue(TypeUser, userID),
			nil,
			nil,
		},
	}
}
