// internal/identity/roles.go
package identity

// ThreadRouting selects how conversation threads are scoped to a viewer.
type ThreadRouting string

const (
	// RouteBySubjectParty scopes threads to the viewer's own identity.
	RouteBySubjectParty ThreadRouting = "subjectParty"
	// RouteByTargetArea scopes threads to the viewer's organizational area.
	RouteByTargetArea ThreadRouting = "targetArea"
)

// Capability is the single role-capability lookup consumed by the
// aggregator's filtering. Roles are added here, never checked ad hoc.
type Capability struct {
	// IndividualBroadcastsOnly limits the broadcast feed to individually
	// addressed items; group broadcasts for these roles are managed
	// elsewhere in the portal.
	IndividualBroadcastsOnly bool
	ThreadRouting            ThreadRouting
	// ReceivesDutyAssignments marks roles that can appear as responsible
	// parties on duty assignments.
	ReceivesDutyAssignments bool
	// BooksReservationSlots marks roles that own reservation slots.
	BooksReservationSlots bool
	ReceivesDocumentAcks  bool
}

var roleCapabilities = map[Role]Capability{
	RoleAdmin: {
		IndividualBroadcastsOnly: true,
		ThreadRouting:            RouteByTargetArea,
		ReceivesDocumentAcks:     true,
	},
	RoleStaff: {
		IndividualBroadcastsOnly: true,
		ThreadRouting:            RouteByTargetArea,
		ReceivesDutyAssignments:  true,
		ReceivesDocumentAcks:     true,
	},
	RoleSpecialist: {
		IndividualBroadcastsOnly: true,
		ThreadRouting:            RouteByTargetArea,
		ReceivesDutyAssignments:  true,
		ReceivesDocumentAcks:     true,
	},
	RoleFamily: {
		ThreadRouting:           RouteBySubjectParty,
		ReceivesDutyAssignments: true,
		BooksReservationSlots:   true,
		ReceivesDocumentAcks:    true,
	},
	RoleApplicant: {
		ThreadRouting:         RouteBySubjectParty,
		BooksReservationSlots: true,
	},
}

// CapabilityFor returns the capabilities for role. Unknown roles get the
// most restrictive profile.
func CapabilityFor(role Role) Capability {
	if cap, ok := roleCapabilities[role]; ok {
		return cap
	}
	return Capability{ThreadRouting: RouteBySubjectParty}
}
