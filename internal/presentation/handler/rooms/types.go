package rooms

import "github.com/hilthontt/chatrelay/internal/domain"

type presenceResponse struct {
	RoomID      domain.RoomID `json:"roomId"`
	MemberCount int           `json:"memberCount"`
}

type presenceHistoryResponse struct {
	RoomID  domain.RoomID             `json:"roomId"`
	Entries []domain.PresenceAuditLog `json:"entries"`
}
