package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/mnemo/pkg/ingest"
	"github.com/papercomputeco/mnemo/pkg/recall"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

const listCommand = "/list"

// maxMedia is the most attachments a WhatsApp message can carry.
const maxMedia = 10

// handleWebhook records an inbound WhatsApp message delivered as a form
// post and replies with TwiML. Redeliveries are acknowledged without side
// effects. Transient failures answer 503 so the provider retries.
func (s *Server) handleWebhook(c *fiber.Ctx) error {
	ev, err := parseWebhook(c)
	if err != nil {
		s.logger.Debug("rejected webhook payload", "error", err)
		return twiml(c, fiber.StatusBadRequest)
	}

	if strings.HasPrefix(strings.TrimSpace(ev.Body), listCommand) {
		return s.handleListCommand(c, ev)
	}

	res, err := s.config.Ingest.Ingest(c.UserContext(), *ev)
	if err != nil {
		status := statusFor(err)
		s.logger.Error("webhook not recorded",
			"message_sid", ev.MessageSid,
			"status", status,
			"error", err,
		)
		return twiml(c, status)
	}

	if !res.IsNew && res.Reply != "" {
		return twiml(c, fiber.StatusOK, res.Reply)
	}
	return twiml(c, fiber.StatusOK, s.config.AckMessage)
}

// handleListCommand replies with the sender's most recent memories.
func (s *Server) handleListCommand(c *fiber.Ctx, ev *ingest.InboundEvent) error {
	ctx := c.UserContext()

	user, err := s.config.Identity.Lookup(ctx, ev.From)
	if err != nil {
		if storage.IsNotFound(err) {
			return twiml(c, fiber.StatusOK, "No user found")
		}
		return twiml(c, statusFor(err))
	}

	res, err := s.config.Searcher.Search(ctx, recall.Query{UserID: user.ID, Limit: s.config.ListLimit})
	if err != nil {
		s.logger.Error("list command failed", "user_id", user.ID, "error", err)
		return twiml(c, statusFor(err))
	}
	if len(res.Memories) == 0 {
		return twiml(c, fiber.StatusOK, "No memories yet")
	}

	var b strings.Builder
	for _, m := range res.Memories {
		fmt.Fprintf(&b, "ID: %s\n", m.ExternalID)
		fmt.Fprintf(&b, "Created At: %s\n", m.CreatedAt.Format("2006-01-02 15:04 MST"))
		fmt.Fprintf(&b, "Memory: %s\n\n", m.Content)
	}
	return twiml(c, fiber.StatusOK, strings.TrimSpace(b.String()))
}

// parseWebhook reads the provider's form fields into an inbound event. The
// full form is kept as the raw payload.
func parseWebhook(c *fiber.Ctx) (*ingest.InboundEvent, error) {
	form := make(map[string]string)
	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		form[string(k)] = string(v)
	})

	sid := form["MessageSid"]
	if sid == "" {
		sid = form["SmsMessageSid"]
	}
	if sid == "" {
		return nil, fmt.Errorf("%w: MessageSid is required", ingest.ErrInvalidEvent)
	}
	if form["From"] == "" {
		return nil, fmt.Errorf("%w: From is required", ingest.ErrInvalidEvent)
	}

	numMedia := 0
	if raw := form["NumMedia"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxMedia {
			return nil, fmt.Errorf("%w: NumMedia %q", ingest.ErrInvalidEvent, raw)
		}
		numMedia = n
	}

	ev := &ingest.InboundEvent{
		MessageSid:  sid,
		Body:        form["Body"],
		Kind:        form["MessageType"],
		From:        form["From"],
		To:          form["To"],
		WaID:        form["WaId"],
		ProfileName: form["ProfileName"],
	}
	if secondary := form["SmsMessageSid"]; secondary != sid {
		ev.SecondaryID = secondary
	}

	for i := range numMedia {
		url := form["MediaUrl"+strconv.Itoa(i)]
		if url == "" {
			continue
		}
		ev.Media = append(ev.Media, ingest.MediaRef{
			URL:         url,
			ContentType: form["MediaContentType"+strconv.Itoa(i)],
		})
	}

	raw, err := json.Marshal(form)
	if err != nil {
		return nil, err
	}
	ev.RawPayload = raw
	return ev, nil
}
