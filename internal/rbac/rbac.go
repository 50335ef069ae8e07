package rbac

import "strings"

// Area is a moderated part of the site with its own admin list.
type Area string

const (
	AreaToolkits Area = "toolkits"
	AreaNews     Area = "news"
)

type Action string

const (
	ActionRead    Action = "read"
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionAdmin   Action = "admin"
)

// Policy is the server-side admin allow-list. Emails match exactly after
// trimming and case folding.
type Policy struct {
	admins map[Area]map[string]struct{}
}

func NewPolicy(lists map[Area][]string) *Policy {
	policy := &Policy{admins: make(map[Area]map[string]struct{}, len(lists))}
	for area, emails := range lists {
		set := make(map[string]struct{}, len(emails))
		for _, email := range emails {
			if normalized := normalizeEmail(email); normalized != "" {
				set[normalized] = struct{}{}
			}
		}
		policy.admins[area] = set
	}
	return policy
}

func (p *Policy) IsAdmin(area Area, email string) bool {
	if p == nil {
		return false
	}
	_, ok := p.admins[area][normalizeEmail(email)]
	return ok
}

// Admins returns the configured emails for area.
func (p *Policy) Admins(area Area) []string {
	if p == nil {
		return nil
	}
	items := make([]string, 0, len(p.admins[area]))
	for email := range p.admins[area] {
		items = append(items, email)
	}
	return items
}

// Can reports whether a signed-in user with email may perform action in area.
func (p *Policy) Can(area Area, email string, action Action) bool {
	switch action {
	case ActionRead, ActionSubmit:
		return true
	case ActionApprove, ActionAdmin:
		return p.IsAdmin(area, email)
	default:
		return false
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
