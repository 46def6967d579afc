package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/servicepoint/garage-bookings/internal/platform/mailer"
	"github.com/servicepoint/garage-bookings/pkg/config"
	"github.com/servicepoint/garage-bookings/pkg/events"
	"github.com/servicepoint/garage-bookings/pkg/logger"
)

// The notify worker turns booking events into email. It shares the
// fire-and-forget contract of the API's hooks: a failed send is logged
// and dropped, never retried into the booking flow.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	bus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	emailSvc := buildMailer(cfg)
	w := &worker{email: emailSvc}

	if err := bus.QueueSubscribe(events.BookingCreated, "notify", w.onBookingCreated); err != nil {
		logger.Error("failed to subscribe", "subject", events.BookingCreated, "error", err)
		os.Exit(1)
	}
	if err := bus.QueueSubscribe(events.BookingStatusChanged, "notify", w.onStatusChanged); err != nil {
		logger.Error("failed to subscribe", "subject", events.BookingStatusChanged, "error", err)
		os.Exit(1)
	}

	port := os.Getenv("NOTIFY_PORT")
	if port == "" {
		port = "8081"
	}
	srv := &http.Server{Addr: ":" + port, Handler: healthHandler()}
	go func() {
		logger.Info("starting notify worker", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("notify http server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down notify worker")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

type worker struct {
	email mailer.Service
}

func (w *worker) onBookingCreated(msg *events.Message) {
	var ev events.BookingCreatedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		logger.Error("malformed booking.created event", "error", err)
		return
	}
	if ev.GarageEmail == "" {
		return
	}

	m := mailer.BookingNotificationToGarage(&ev)
	if _, err := w.email.Send(ev.GarageEmail, ev.GarageName, m.Subject, m.Text, m.HTML); err != nil {
		logger.Error("failed to send booking notification", "error", err, "booking_id", ev.BookingID)
		return
	}
	logger.Info("booking notification sent", "booking_id", ev.BookingID, "garage", ev.GarageRef)
}

func (w *worker) onStatusChanged(msg *events.Message) {
	var ev events.BookingStatusChangedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		logger.Error("malformed booking.status_changed event", "error", err)
		return
	}
	if ev.CustomerEmail == "" {
		return
	}

	m := mailer.StatusUpdateToCustomer(&ev)
	if _, err := w.email.Send(ev.CustomerEmail, ev.CustomerName, m.Subject, m.Text, m.HTML); err != nil {
		logger.Error("failed to send status update", "error", err, "booking_id", ev.BookingID)
		return
	}
	logger.Info("status update sent", "booking_id", ev.BookingID, "status", ev.NewStatus)
}

func healthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
	})
	return mux
}

func buildMailer(cfg *config.Config) mailer.Service {
	if cfg.Email.DevMode {
		return mailer.NewDevMailer()
	}
	if cfg.Email.MailerSendKey != "" {
		return mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.SMTPFromName, cfg.Email.SMTPFrom)
	}
	return mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
}
