package domain

import (
	"errors"
	"testing"
)

func TestCoordinatesKey(t *testing.T) {
	t.Parallel()

	coords := Coordinates{Topic: "order-events", Partition: 2, Offset: 1543}
	if got := coords.Key(); got != "order-events-2-1543" {
		t.Fatalf("Key() = %s, want order-events-2-1543", got)
	}
}

func TestUserEventValidate(t *testing.T) {
	t.Parallel()

	if err := (UserEvent{UserID: "u1"}).Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}
	if err := (UserEvent{}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}

func TestOrderEventValidate(t *testing.T) {
	t.Parallel()

	if err := (OrderEvent{UserID: "u1", OrderID: "o1"}).Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}
	if err := (OrderEvent{OrderID: "o1"}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}

func TestRecommendationEventValidate(t *testing.T) {
	t.Parallel()

	price := 19.99
	valid := RecommendationEvent{
		UserID: "u1",
		Recommendations: []RecommendedProduct{
			{ProductID: "p1", Name: "Desk Lamp", Price: &price, Category: "home"},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(e *RecommendationEvent)
	}{
		{name: "missing user id", mutate: func(e *RecommendationEvent) { e.UserID = "" }},
		{name: "empty recommendations", mutate: func(e *RecommendationEvent) { e.Recommendations = nil }},
		{name: "missing product id", mutate: func(e *RecommendationEvent) { e.Recommendations[0].ProductID = "" }},
		{name: "missing name", mutate: func(e *RecommendationEvent) { e.Recommendations[0].Name = "" }},
		{name: "missing price", mutate: func(e *RecommendationEvent) { e.Recommendations[0].Price = nil }},
		{name: "missing category", mutate: func(e *RecommendationEvent) { e.Recommendations[0].Category = "" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			price := 19.99
			event := RecommendationEvent{
				UserID: "u1",
				Recommendations: []RecommendedProduct{
					{ProductID: "p1", Name: "Desk Lamp", Price: &price, Category: "home"},
				},
			}
			tt.mutate(&event)
			if err := event.Validate(); !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestPreferencesDefaultEnabled(t *testing.T) {
	t.Parallel()

	var prefs Preferences
	if !prefs.PromotionsEnabled() || !prefs.OrderUpdatesEnabled() || !prefs.RecommendationsEnabled() {
		t.Fatal("unset preferences should count as enabled")
	}

	disabled := false
	prefs.Recommendations = &disabled
	if prefs.RecommendationsEnabled() {
		t.Fatal("explicit false should disable recommendations")
	}
}

func TestUserHasValidEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		email string
		want  bool
	}{
		{email: "alice@example.com", want: true},
		{email: "a@b.co", want: true},
		{email: "not-an-email", want: false},
		{email: "spaces in@example.com", want: false},
		{email: "", want: false},
	}

	for _, tt := range tests {
		if got := (User{Email: tt.email}).HasValidEmail(); got != tt.want {
			t.Fatalf("HasValidEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}
