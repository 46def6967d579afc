package mailer

import (
	"fmt"

	"github.com/servicepoint/garage-bookings/pkg/events"
)

// Message templates for the booking lifecycle. Kept as plain Sprintf
// builders; recipients and sending are the caller's concern.

type Email struct {
	Subject string
	Text    string
	HTML    string
}

func BookingNotificationToGarage(ev *events.BookingCreatedEvent) Email {
	date := ev.ScheduledAt.Format("Monday, January 2, 2006")
	clock := ev.ScheduledAt.Format("15:04")

	text := fmt.Sprintf(
		"New service booking at %s.\n\n"+
			"Booking ID: %s\nService: %s\nCustomer: %s\nPhone: %s\n"+
			"Scheduled: %s at %s\n",
		ev.GarageName, ev.BookingID, ev.Service, ev.CustomerName, ev.CustomerPhone, date, clock)
	if ev.Notes != "" {
		text += "Customer notes: " + ev.Notes + "\n"
	}
	text += "\nPlease review and accept or reject this booking as soon as possible."

	html := fmt.Sprintf(
		`<h2>New Service Booking</h2>
<p>You have received a new booking request.</p>
<ul>
<li><b>Booking ID:</b> %s</li>
<li><b>Service:</b> %s</li>
<li><b>Customer:</b> %s</li>
<li><b>Phone:</b> %s</li>
<li><b>Scheduled:</b> %s at %s</li>
</ul>`,
		ev.BookingID, ev.Service, ev.CustomerName, ev.CustomerPhone, date, clock)
	if ev.Notes != "" {
		html += fmt.Sprintf("<p><b>Customer notes:</b> %s</p>", ev.Notes)
	}
	html += "<p>Please review and accept or reject this booking as soon as possible.</p>"

	return Email{
		Subject: fmt.Sprintf("New Service Booking - %s", ev.Service),
		Text:    text,
		HTML:    html,
	}
}

var statusMessages = map[string]string{
	"confirmed":   "Your booking has been accepted!",
	"in_progress": "Your service is now in progress!",
	"completed":   "Your service has been completed!",
	"cancelled":   "Your booking has been cancelled",
}

func StatusUpdateToCustomer(ev *events.BookingStatusChangedEvent) Email {
	msg, ok := statusMessages[ev.NewStatus]
	if !ok {
		msg = "Your booking status has been updated"
	}

	text := fmt.Sprintf(
		"Hi %s,\n\n%s\n\nBooking ID: %s\nService: %s\nGarage: %s\nStatus: %s\n",
		ev.CustomerName, msg, ev.BookingID, ev.Service, ev.GarageName, ev.NewStatus)
	if ev.Note != "" {
		text += "Note from the garage: " + ev.Note + "\n"
	}
	if ev.GaragePhone != "" {
		text += fmt.Sprintf("\nQuestions? Call the garage at %s.\n", ev.GaragePhone)
	}

	html := fmt.Sprintf(
		`<h2>%s</h2>
<ul>
<li><b>Booking ID:</b> %s</li>
<li><b>Service:</b> %s</li>
<li><b>Garage:</b> %s</li>
<li><b>Status:</b> %s</li>
</ul>`,
		msg, ev.BookingID, ev.Service, ev.GarageName, ev.NewStatus)
	if ev.Note != "" {
		html += fmt.Sprintf("<p><b>Note from the garage:</b> %s</p>", ev.Note)
	}

	return Email{
		Subject: fmt.Sprintf("Booking Update: %s", msg),
		Text:    text,
		HTML:    html,
	}
}

func GarageWelcome(ev *events.GarageOnboardedEvent) Email {
	text := fmt.Sprintf(
		"Hi %s,\n\nYour garage %q has been added to Service Point.\n\n"+
			"Garage ID: %s\nTemporary password: %s\n\n"+
			"Complete your registration by choosing your own password with your "+
			"garage ID and this email address.\n",
		ev.OwnerName, ev.GarageName, ev.GarageRef, ev.TempPass)

	html := fmt.Sprintf(
		`<h2>Welcome to Service Point</h2>
<p>Hi %s,</p>
<p>Your garage <b>%s</b> has been added to the platform.</p>
<p><b>Garage ID:</b> %s<br><b>Temporary password:</b> %s</p>
<p>Complete your registration by choosing your own password with your garage ID and this email address.</p>`,
		ev.OwnerName, ev.GarageName, ev.GarageRef, ev.TempPass)

	return Email{
		Subject: "Your garage has been added to Service Point",
		Text:    text,
		HTML:    html,
	}
}

func GaragePasswordReset(garageName, ownerName, tempPass string) Email {
	text := fmt.Sprintf(
		"Hi %s,\n\nThe password for %q was reset by a platform administrator.\n\n"+
			"Temporary password: %s\n\n"+
			"Log in with it and choose a new password. If you did not request "+
			"this, contact support.\n",
		ownerName, garageName, tempPass)

	html := fmt.Sprintf(
		`<p>Hi %s,</p><p>The password for <b>%s</b> was reset by a platform administrator.</p>
<p><b>Temporary password:</b> %s</p>
<p>Log in with it and choose a new password. If you did not request this, contact support.</p>`,
		ownerName, garageName, tempPass)

	return Email{
		Subject: "Your Service Point password was reset",
		Text:    text,
		HTML:    html,
	}
}
