package domain

import "regexp"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Preferences are per-user opt-out flags. A nil pointer means the user never
// expressed a preference, which counts as enabled.
type Preferences struct {
	Promotions      *bool `json:"promotions,omitempty"`
	OrderUpdates    *bool `json:"orderUpdates,omitempty"`
	Recommendations *bool `json:"recommendations,omitempty"`
}

func (p Preferences) PromotionsEnabled() bool {
	return p.Promotions == nil || *p.Promotions
}

func (p Preferences) OrderUpdatesEnabled() bool {
	return p.OrderUpdates == nil || *p.OrderUpdates
}

func (p Preferences) RecommendationsEnabled() bool {
	return p.Recommendations == nil || *p.Recommendations
}

// User is the directory's view of a notification recipient.
type User struct {
	ID          string      `json:"_id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	Preferences Preferences `json:"preferences"`
}

func (u User) HasValidEmail() bool {
	return emailPattern.MatchString(u.Email)
}

// DisplayName falls back to a generic salutation when the directory holds no
// name for the user.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return "Valued Customer"
}
