package service

import (
	"context"
	"errors"
	"testing"

	"github.com/servicepoint/garage-bookings/internal/domain"
)

type mockMailer struct {
	lastTo      string
	lastSubject string
	lastText    string
	sent        int
	sendErr     error
}

func (m *mockMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	m.lastTo = toEmail
	m.lastSubject = subject
	m.lastText = text
	m.sent++
	return "mock-id", m.sendErr
}

func validOnboardReq() *OnboardGarageRequest {
	return &OnboardGarageRequest{
		GarageName:    "Apex Auto Works",
		OwnerName:     "Ravi Kumar",
		Email:         "Apex@Example.com",
		ContactNumber: "9000000000",
		Location:      "12 MG Road",
		State:         "Karnataka",
		City:          "Bengaluru",
		District:      "Urban",
		Latitude:      12.97,
		Longitude:     77.59,
	}
}

func TestOnboardGarage(t *testing.T) {
	garages := newMockGaragesRepo()
	email := &mockMailer{}
	bus := &mockPublisher{}
	svc := NewGarageService(garages, email, bus)

	g, err := svc.Onboard(context.Background(), 1, validOnboardReq())
	if err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	if g.GarageRef == "" {
		t.Error("garage ref not assigned")
	}
	if g.Email != "apex@example.com" {
		t.Errorf("email not normalized: %q", g.Email)
	}
	if g.PasswordHash == "" {
		t.Error("temporary password was not hashed")
	}
	if g.IsClaimed {
		t.Error("new garage must start unclaimed")
	}

	if email.sent != 1 || email.lastTo != "apex@example.com" {
		t.Errorf("welcome email: sent=%d to=%q", email.sent, email.lastTo)
	}
	if !bus.published("garage.onboarded") {
		t.Error("garage.onboarded event not published")
	}
}

func TestOnboardGarageValidation(t *testing.T) {
	svc := NewGarageService(newMockGaragesRepo(), &mockMailer{}, &mockPublisher{})

	req := validOnboardReq()
	req.Email = ""
	req.Latitude = 400

	_, err := svc.Onboard(context.Background(), 1, req)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(ve.Fields) < 2 {
		t.Errorf("expected both email and latitude failures, got %+v", ve.Fields)
	}
}

func TestClaimGarage(t *testing.T) {
	g := testGarage()
	if err := g.SetPassword("temp-pass-123"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	garages := newMockGaragesRepo(g)
	svc := NewGarageService(garages, &mockMailer{}, &mockPublisher{})

	claimed, err := svc.Claim(context.Background(), g.Email, g.GarageRef, "temp-pass-123", "my-new-password")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claimed.IsClaimed {
		t.Error("garage not marked claimed")
	}
	if !claimed.VerifyPassword("my-new-password") {
		t.Error("new password does not verify")
	}
	if claimed.VerifyPassword("temp-pass-123") {
		t.Error("temporary password still verifies after claim")
	}
}

func TestClaimRejectsWrongTempPassword(t *testing.T) {
	g := testGarage()
	if err := g.SetPassword("temp-pass-123"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	svc := NewGarageService(newMockGaragesRepo(g), &mockMailer{}, &mockPublisher{})

	_, err := svc.Claim(context.Background(), g.Email, g.GarageRef, "wrong", "my-new-password")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestClaimTwice(t *testing.T) {
	g := testGarage()
	if err := g.SetPassword("temp-pass-123"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	svc := NewGarageService(newMockGaragesRepo(g), &mockMailer{}, &mockPublisher{})

	if _, err := svc.Claim(context.Background(), g.Email, g.GarageRef, "temp-pass-123", "my-new-password"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := svc.Claim(context.Background(), g.Email, g.GarageRef, "my-new-password", "another-password")
	if !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Fatalf("second claim err = %v, want ErrAlreadyClaimed", err)
	}
}

func TestClaimShortPassword(t *testing.T) {
	svc := NewGarageService(newMockGaragesRepo(), &mockMailer{}, &mockPublisher{})
	_, err := svc.Claim(context.Background(), "a@b.c", "GAR_1_X", "temp", "short")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestResetPasswordEmailsNewTemp(t *testing.T) {
	g := testGarage()
	if err := g.SetPassword("original"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	email := &mockMailer{}
	svc := NewGarageService(newMockGaragesRepo(g), email, &mockPublisher{})

	if _, err := svc.ResetPassword(context.Background(), g.GarageRef); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if g.VerifyPassword("original") {
		t.Error("old password still verifies after reset")
	}
	if email.sent != 1 || email.lastTo != g.Email {
		t.Errorf("reset email: sent=%d to=%q", email.sent, email.lastTo)
	}
}
