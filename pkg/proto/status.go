package proto

import "strings"

// ApplicationStatus tracks a user's guild application.
type ApplicationStatus string

const (
	ApplicationPending    ApplicationStatus = "PENDING"
	ApplicationTicketOpen ApplicationStatus = "TICKET_OPENED"
	ApplicationAccepted   ApplicationStatus = "ACCEPTED"
	ApplicationDenied     ApplicationStatus = "DENIED"
	ApplicationLeft       ApplicationStatus = "LEFT_SERVER"
)

// CommunityStatus tracks a user's community (vouch) standing.
type CommunityStatus string

const (
	CommunityPending      CommunityStatus = "PENDING"
	CommunityVouchAccept  CommunityStatus = "VOUCH_ACCEPTED"
	CommunityVouchDenied  CommunityStatus = "VOUCH_DENIED"
	CommunityVouchTimeout CommunityStatus = "VOUCH_TIMEOUT"
	CommunityAccepted     CommunityStatus = "ACCEPTED"
	CommunityDenied       CommunityStatus = "DENIED"
	CommunityLeft         CommunityStatus = "LEFT_SERVER"
)

var allApplicationStatuses = map[ApplicationStatus]bool{
	ApplicationPending:    true,
	ApplicationTicketOpen: true,
	ApplicationAccepted:   true,
	ApplicationDenied:     true,
	ApplicationLeft:       true,
}

var allCommunityStatuses = map[CommunityStatus]bool{
	CommunityPending:      true,
	CommunityVouchAccept:  true,
	CommunityVouchDenied:  true,
	CommunityVouchTimeout: true,
	CommunityAccepted:     true,
	CommunityDenied:       true,
	CommunityLeft:         true,
}

func ValidateApplicationStatus(raw string) (ApplicationStatus, bool) {
	s := ApplicationStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if allApplicationStatuses[s] {
		return s, true
	}
	return "", false
}

func ValidateCommunityStatus(raw string) (CommunityStatus, bool) {
	s := CommunityStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if allCommunityStatuses[s] {
		return s, true
	}
	return "", false
}

// VouchOutcome is the single terminal result of one vouch confirmation.
type VouchOutcome string

const (
	VouchAccepted VouchOutcome = "ACCEPTED"
	VouchDeclined VouchOutcome = "DECLINED"
	VouchTimedOut VouchOutcome = "TIMED_OUT"
)

// CommunityStatusFor maps a vouch outcome to the persisted community status.
func (o VouchOutcome) CommunityStatus() CommunityStatus {
	switch o {
	case VouchAccepted:
		return CommunityVouchAccept
	case VouchDeclined:
		return CommunityVouchDenied
	default:
		return CommunityVouchTimeout
	}
}
