package group

import (
	"sort"
	"time"
)

// Strategy tags how tasks targeting the group pick an assignee.
type Strategy string

const (
	StrategyRoundRobin   Strategy = "round_robin"
	StrategyLoadBalanced Strategy = "load_balanced"
	StrategyDirect       Strategy = "direct"
)

// Member is one person in a group. Members keep their join time so that
// rotation order is stable.
type Member struct {
	PersonID string    `yaml:"person_id" json:"personId"`
	JoinedAt time.Time `yaml:"joined_at" json:"joinedAt"`
	Active   bool      `yaml:"active" json:"active"`
}

// Group is a set of people eligible to receive tasks.
type Group struct {
	ID         string    `yaml:"id" json:"id"`
	Name       string    `yaml:"name" json:"name"`
	Assignable bool      `yaml:"assignable" json:"assignable"`
	Strategy   Strategy  `yaml:"strategy" json:"strategy"`
	Members    []Member  `yaml:"members" json:"members"`
	// MemberCount mirrors len(Members); kept in sync by SyncMemberCount on
	// every mutation.
	MemberCount int       `yaml:"member_count" json:"memberCount"`
	CreatedAt   time.Time `yaml:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updatedAt"`
}

// EligibleMembers returns the ids of active members in ascending join-time
// order. The sort is stable so equal join times keep insertion order.
func (g *Group) EligibleMembers() []string {
	members := make([]Member, 0, len(g.Members))
	for _, m := range g.Members {
		if m.Active {
			members = append(members, m)
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.PersonID
	}
	return ids
}

// SyncMemberCount recomputes the denormalized member count.
func (g *Group) SyncMemberCount() {
	g.MemberCount = len(g.Members)
}

// AddMember appends a member joining now. Duplicate person ids are
// reactivated instead of duplicated.
func (g *Group) AddMember(personID string, now time.Time) {
	for i := range g.Members {
		if g.Members[i].PersonID == personID {
			g.Members[i].Active = true
			g.SyncMemberCount()
			return
		}
	}
	g.Members = append(g.Members, Member{PersonID: personID, JoinedAt: now, Active: true})
	g.SyncMemberCount()
}

// RemoveMember deactivates a member, keeping the historical record.
func (g *Group) RemoveMember(personID string) bool {
	for i := range g.Members {
		if g.Members[i].PersonID == personID && g.Members[i].Active {
			g.Members[i].Active = false
			g.SyncMemberCount()
			return true
		}
	}
	return false
}
