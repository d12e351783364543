package entity

// Actor is the authenticated caller of a workflow operation
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	// OnBehalfOf is the submitter an agent is acting for
	OnBehalfOf string        `json:"on_behalf_of,omitempty"`
	Client     ClientContext `json:"client"`
}

// ActsFor reports whether the actor may exercise ownership of a submitter's forms
func (a Actor) ActsFor(submitterID string) bool {
	if submitterID == "" {
		return false
	}
	if a.ID == submitterID {
		return true
	}
	return a.Role == RoleAgent && a.OnBehalfOf == submitterID
}

// Account is a user known to the account directory
type Account struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	Active     bool   `json:"active"`
	LarkOpenID string `json:"lark_open_id,omitempty"`
}
