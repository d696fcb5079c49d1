// Package auth provides authorization types for ward staff.
package auth

// Role represents a staff role in the system.
type Role string

const (
	RoleDoctor     Role = "doctor"     // Ward doctor, full clinical access
	RoleConsultant Role = "consultant" // Visiting specialist, completes consultations
	RoleNurse      Role = "nurse"      // Ward nurse, notes and appointments
	RoleAdmin      Role = "admin"      // Department admin, staff management
	RoleViewer     Role = "viewer"     // Read-only access
)

// ValidRoles lists every role the staff directory accepts.
var ValidRoles = []Role{RoleDoctor, RoleConsultant, RoleNurse, RoleAdmin, RoleViewer}

// IsValidRole reports whether s names a known role.
func IsValidRole(s string) bool {
	for _, r := range ValidRoles {
		if string(r) == s {
			return true
		}
	}
	return false
}

// Permission represents a specific action on a resource.
type Permission string

// Patient and admission permissions
const (
	PermPatientCreate      Permission = "patient.create"
	PermPatientRead        Permission = "patient.read"
	PermPatientUpdate      Permission = "patient.update"
	PermAdmissionCreate    Permission = "admission.create"
	PermAdmissionUpdate    Permission = "admission.update"
	PermAdmissionDischarge Permission = "admission.discharge"
)

// Consultation permissions
const (
	PermConsultationCreate   Permission = "consultation.create"
	PermConsultationRead     Permission = "consultation.read"
	PermConsultationUpdate   Permission = "consultation.update"
	PermConsultationComplete Permission = "consultation.complete"
)

// Note, appointment and reporting permissions
const (
	PermNoteCreate        Permission = "note.create"
	PermNoteRead          Permission = "note.read"
	PermAppointmentCreate Permission = "appointment.create"
	PermAppointmentRead   Permission = "appointment.read"
	PermAppointmentUpdate Permission = "appointment.update"
	PermReportGenerate    Permission = "report.generate"
)

// Admin permissions
const (
	PermStaffCreate Permission = "staff.create"
	PermStaffUpdate Permission = "staff.update"
	PermAuditRead   Permission = "audit.read"
)

// RolePermissions maps roles to their default permissions.
var RolePermissions = map[Role][]Permission{
	RoleDoctor: {
		PermPatientCreate, PermPatientRead, PermPatientUpdate,
		PermAdmissionCreate, PermAdmissionUpdate, PermAdmissionDischarge,
		PermConsultationCreate, PermConsultationRead, PermConsultationUpdate, PermConsultationComplete,
		PermNoteCreate, PermNoteRead,
		PermAppointmentCreate, PermAppointmentRead, PermAppointmentUpdate,
		PermReportGenerate,
	},
	RoleConsultant: {
		PermPatientRead,
		PermConsultationRead, PermConsultationUpdate, PermConsultationComplete,
		PermNoteCreate, PermNoteRead,
	},
	RoleNurse: {
		PermPatientRead,
		PermConsultationRead,
		PermNoteCreate, PermNoteRead,
		PermAppointmentCreate, PermAppointmentRead, PermAppointmentUpdate,
	},
	RoleAdmin: {
		PermPatientCreate, PermPatientRead, PermPatientUpdate,
		PermAdmissionCreate, PermAdmissionUpdate, PermAdmissionDischarge,
		PermConsultationCreate, PermConsultationRead, PermConsultationUpdate, PermConsultationComplete,
		PermNoteCreate, PermNoteRead,
		PermAppointmentCreate, PermAppointmentRead, PermAppointmentUpdate,
		PermReportGenerate,
		PermStaffCreate, PermStaffUpdate, PermAuditRead,
	},
	RoleViewer: {
		PermPatientRead, PermConsultationRead, PermNoteRead, PermAppointmentRead,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// HasAnyRole checks if the user has any of the specified roles.
func HasAnyRole(userRoles []Role, requiredRoles ...Role) bool {
	for _, ur := range userRoles {
		for _, rr := range requiredRoles {
			if ur == rr {
				return true
			}
		}
	}
	return false
}
