package handler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"contactlink/internal/contact/models"
)

// IdentifyRequest is the POST /identify body. phoneNumber arrives as either
// a JSON string or a JSON number.
type IdentifyRequest struct {
	Email       *string     `json:"email"`
	PhoneNumber *FlexString `json:"phoneNumber"`
}

// FlexString accepts a JSON string or number and keeps its literal text.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("phoneNumber must be a string or number")
	}
	*f = FlexString(n.String())
	return nil
}

// ToModel converts the body into a normalized service request.
func (r IdentifyRequest) ToModel() models.IdentifyRequest {
	req := models.IdentifyRequest{Email: r.Email}
	if r.PhoneNumber != nil {
		phone := string(*r.PhoneNumber)
		req.PhoneNumber = &phone
	}
	req.Normalize()
	return req
}

// IdentifyResponse is the wire shape of a consolidated identity. The
// primaryContatctId spelling is part of the public contract.
type IdentifyResponse struct {
	Contact ContactResponse `json:"contact"`
}

type ContactResponse struct {
	PrimaryContactID    int64    `json:"primaryContatctId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

func toResponse(identity *models.Identity) IdentifyResponse {
	resp := IdentifyResponse{Contact: ContactResponse{
		PrimaryContactID:    identity.PrimaryContactID,
		Emails:              identity.Emails,
		PhoneNumbers:        identity.PhoneNumbers,
		SecondaryContactIDs: identity.SecondaryContactIDs,
	}}
	if resp.Contact.Emails == nil {
		resp.Contact.Emails = []string{}
	}
	if resp.Contact.PhoneNumbers == nil {
		resp.Contact.PhoneNumbers = []string{}
	}
	if resp.Contact.SecondaryContactIDs == nil {
		resp.Contact.SecondaryContactIDs = []int64{}
	}
	return resp
}
