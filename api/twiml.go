package api

import (
	"encoding/xml"

	"github.com/gofiber/fiber/v2"
)

type twimlResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

// twiml replies with a messaging response holding the given messages. No
// messages yields an empty response, which sends nothing to the user.
func twiml(c *fiber.Ctx, status int, messages ...string) error {
	body, err := xml.Marshal(twimlResponse{Messages: messages})
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
	return c.Status(status).Send(append([]byte(xml.Header), body...))
}
