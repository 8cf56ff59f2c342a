package server

import (
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/replypilot/replypilot/internal/billing"
	"github.com/replypilot/replypilot/internal/sms"
	"github.com/replypilot/replypilot/pkg/jsonutil"
)

// maxBillingPayload bounds the webhook body read.
const maxBillingPayload = 1 << 20

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// InboundSMS handles the provider's inbound message webhook. The reply
// body goes back as TwiML; an empty engine reply returns an empty
// response element so nothing is sent.
func (s *Server) InboundSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "malformed form payload")
		return
	}
	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	messageSid := r.PostFormValue("MessageSid")
	if from == "" {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "missing From")
		return
	}

	if messageSid != "" && s.statuses != nil {
		if err := s.statuses.Record(r.Context(), messageSid, from, sms.DirectionInbound, "received", body); err != nil {
			log.Printf("failed to log inbound message %s: %v", messageSid, err)
		}
	}

	reply, err := s.inbound.HandleInbound(r.Context(), from, body, messageSid)
	if err != nil {
		log.Printf("inbound command failed for %s: %v", from, err)
		reply = "Something went wrong on our side. Please try again in a moment."
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(sms.Twiml(reply))
}

// SMSStatus applies a delivery-status callback. Always 200: the
// provider retries non-2xx responses and a status row is not worth a
// retry storm.
func (s *Server) SMSStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	sid := r.PostFormValue("MessageSid")
	status := r.PostFormValue("MessageStatus")
	if sid != "" && status != "" {
		if err := s.statuses.UpdateStatus(r.Context(), sid, status); err != nil {
			log.Printf("failed to update status for message %s: %v", sid, err)
		}
	}
	w.WriteHeader(http.StatusOK)
}

// BillingWebhook verifies the provider signature, then processes the
// event. Bad signatures are 400; a processing error is still 200 with
// the failure logged, because upstream retry cannot fix our bug and
// the event row was not recorded, so a manual replay stays possible.
func (s *Server) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBillingPayload))
	if err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	header := r.Header.Get("Stripe-Signature")
	if err := billing.VerifySignature(payload, header, s.cfg.BillingWebhookSecret, billing.DefaultSigTolerance, timeNow()); err != nil {
		log.Printf("rejected billing webhook: %v", err)
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	if err := s.billing.Process(r.Context(), payload); err != nil {
		log.Printf("billing event processing failed: %v", err)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.ListAll(r.Context())
	if err != nil {
		log.Printf("failed to list accounts: %v", err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, accounts)
}

func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.accounts.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusNotFound, "account not found")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, acct)
}

func (s *Server) PauseAccount(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, true)
}

func (s *Server) ResumeAccount(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, false)
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	id := mux.Vars(r)["id"]
	if err := s.accounts.SetMonitoringPaused(r.Context(), id, paused); err != nil {
		log.Printf("failed to set paused=%t for account %s: %v", paused, id, err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "failed to update account")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "monitoring_paused": paused})
}
