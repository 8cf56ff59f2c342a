package sms

import (
	"encoding/xml"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// Twiml wraps a reply body in the XML envelope the SMS provider expects
// from a webhook response. An empty message yields an empty <Response/>,
// which tells the provider to send nothing.
func Twiml(message string) []byte {
	out, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		// Marshalling a two-field struct cannot fail with well-formed
		// input; fall back to the empty envelope.
		return []byte(xml.Header + "<Response></Response>")
	}
	return append([]byte(xml.Header), out...)
}
