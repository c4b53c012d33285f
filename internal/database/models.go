package database

import "time"

type FriendStatus string

const (
	FriendStatusPending  FriendStatus = "pending"
	FriendStatusAccepted FriendStatus = "accepted"
)

type Friend struct {
	Id         string
	SenderId   string
	ReceiverId string
	Status     FriendStatus
	IsBlocked  bool
	BlockedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsParty reports whether userId is the sender or receiver of the relation.
func (f Friend) IsParty(userId string) bool {
	if userId == "" {
		return false
	}

	userId = normalizeId(userId)
	return normalizeId(f.SenderId) == userId || normalizeId(f.ReceiverId) == userId
}

type Group struct {
	Id        string
	Name      string
	OwnerId   string
	MemberIds []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsParty reports whether userId owns the group or is one of its members.
func (g Group) IsParty(userId string) bool {
	if userId == "" {
		return false
	}

	userId = normalizeId(userId)
	if normalizeId(g.OwnerId) == userId {
		return true
	}

	for _, m := range g.MemberIds {
		if normalizeId(m) == userId {
			return true
		}
	}

	return false
}
