package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/pkg/httputil"
	"github.com/ignite/campaign-dispatch/internal/transport"
)

// Dispatcher runs one campaign send.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Summary, error)
	Provider() string
}

// Handlers contains the HTTP handlers for the dispatch API
type Handlers struct {
	dispatcher Dispatcher
}

// NewHandlers creates a new Handlers instance
func NewHandlers(d Dispatcher) *Handlers {
	return &Handlers{dispatcher: d}
}

// SenderBody is the operator identity of a send request.
type SenderBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SendRequest is the inbound body of POST /api/send.
type SendRequest struct {
	Emails      []string   `json:"emails"`
	Subject     string     `json:"subject"`
	HTMLContent string     `json:"htmlContent"`
	PreviewText string     `json:"previewText,omitempty"`
	Sender      SenderBody `json:"sender"`
}

// SendSummary counts outcomes.
type SendSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// SendResult is one recipient's outcome.
type SendResult struct {
	Email      string `json:"email"`
	Status     string `json:"status"`
	ResponseID string `json:"responseId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SendResponse is the body of a completed dispatch.
type SendResponse struct {
	Success    bool         `json:"success"`
	Message    string       `json:"message"`
	DispatchID string       `json:"dispatchId,omitempty"`
	Provider   string       `json:"provider,omitempty"`
	Summary    SendSummary  `json:"summary"`
	Warnings   []string     `json:"warnings"`
	Results    []SendResult `json:"results"`
}

// HealthCheck returns the service status
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{
		"status":   "ok",
		"provider": h.dispatcher.Provider(),
	})
}

// Send validates the request, runs the dispatch and reports per-recipient
// results.
func (h *Handlers) Send(w http.ResponseWriter, r *http.Request) {
	var body SendRequest
	if !httputil.Decode(w, r, &body) {
		return
	}

	recipients, invalid := NormalizeRecipients(body.Emails)
	if len(invalid) > 0 {
		httputil.ErrorWithDetails(w, http.StatusBadRequest,
			fmt.Sprintf("invalid email addresses: %s", strings.Join(invalid, ", ")), invalid)
		return
	}

	req := dispatch.Request{
		Recipients:  recipients,
		Subject:     strings.TrimSpace(body.Subject),
		Template:    body.HTMLContent,
		PreviewText: body.PreviewText,
		Sender: dispatch.Sender{
			Name:  strings.TrimSpace(body.Sender.Name),
			Email: strings.ToLower(strings.TrimSpace(body.Sender.Email)),
		},
	}

	// A dispatch runs to completion once started; a client that hangs up
	// must not abort the remaining batches.
	summary, err := h.dispatcher.Dispatch(context.WithoutCancel(r.Context()), req)
	if err != nil {
		writeDispatchError(w, err)
		return
	}

	log.Printf("[API] dispatch %s via %s: %d sent, %d failed", summary.DispatchID, summary.Provider, summary.Succeeded, summary.Failed)
	httputil.OK(w, NewSendResponse(summary))
}

func writeDispatchError(w http.ResponseWriter, err error) {
	var ve *dispatch.ValidationError
	var ce *transport.ConnectError
	switch {
	case errors.As(err, &ve):
		httputil.BadRequest(w, ve.Error())
	case errors.As(err, &ce):
		log.Printf("[API] transport pre-flight failed: %v", ce)
		httputil.ErrorWithDetails(w, http.StatusBadGateway,
			fmt.Sprintf("could not connect to the %s transport", ce.Provider), ce.Error())
	case errors.Is(err, config.ErrUnknownProvider):
		log.Printf("[API] configuration error: %v", err)
		httputil.Error(w, http.StatusInternalServerError, "email transport is not configured: "+err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// NewSendResponse maps a dispatch summary onto the response body.
func NewSendResponse(s *dispatch.Summary) SendResponse {
	resp := SendResponse{
		Success:    s.Failed == 0,
		DispatchID: s.DispatchID,
		Provider:   s.Provider,
		Summary:    SendSummary{Total: s.Total, Success: s.Succeeded, Failed: s.Failed},
		Warnings:   s.Warnings,
		Results:    make([]SendResult, 0, len(s.Outcomes)),
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	for _, o := range s.Outcomes {
		res := SendResult{Email: o.Recipient, Status: string(o.Status)}
		if o.Status == dispatch.StatusSuccess {
			res.ResponseID = o.MessageID
		} else {
			res.Error = o.Error
		}
		resp.Results = append(resp.Results, res)
	}

	switch {
	case s.Failed == 0:
		resp.Message = fmt.Sprintf("Sent %d of %d emails", s.Succeeded, s.Total)
	case s.Succeeded == 0:
		resp.Message = fmt.Sprintf("All %d emails failed", s.Total)
	default:
		resp.Message = fmt.Sprintf("Sent %d of %d emails; %d failed", s.Succeeded, s.Total, s.Failed)
	}
	return resp
}
