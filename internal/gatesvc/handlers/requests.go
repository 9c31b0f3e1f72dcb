package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/avvvet/gatepass-services/internal/gatesvc/service"
)

// flexInt accepts 3 as well as "3"; gate consoles send form values as text.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// flexStrings accepts a list, a single value or a comma separated string.
// Numbers are taken as their decimal text.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = nil
		return nil
	}

	if b[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			s, err := scalarString(item)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		*f = out
		return nil
	}

	s, err := scalarString(b)
	if err != nil {
		return err
	}
	if s == "" {
		*f = nil
		return nil
	}
	*f = strings.Split(s, ",")
	return nil
}

func scalarString(b []byte) (string, error) {
	if string(b) == "null" {
		return "", nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		err := json.Unmarshal(b, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", fmt.Errorf("expected a string or a number: %w", err)
	}
	return n.String(), nil
}

type checkinPayload struct {
	PhoneNumber    string      `json:"PhoneNumber"`
	Name           string      `json:"Name"`
	PurposeOfVisit string      `json:"PurposeOfVisit"`
	EntryGate      string      `json:"EntryGate"`
	VehicleNo      string      `json:"VehicleNo"`
	GroupSize      flexInt     `json:"GroupSize"`
	TimeLimit      string      `json:"TimeLimit"`
	CheckinTime    string      `json:"Checkin_time"`
	IDCards        flexStrings `json:"IdCards"`
	Photo          string      `json:"Photo"`
}

// checkinBody takes the check-in fields either at the top level or wrapped
// in VisitorSessionInfo.
type checkinBody struct {
	VisitorSessionInfo *checkinPayload `json:"VisitorSessionInfo"`
	checkinPayload
}

func (b checkinBody) request() service.CheckinRequest {
	p := b.checkinPayload
	if b.VisitorSessionInfo != nil {
		p = *b.VisitorSessionInfo
	}
	return service.CheckinRequest{
		PhoneNumber:    strings.TrimSpace(p.PhoneNumber),
		Name:           strings.TrimSpace(p.Name),
		PurposeOfVisit: strings.TrimSpace(p.PurposeOfVisit),
		EntryGate:      strings.TrimSpace(p.EntryGate),
		VehicleNo:      strings.TrimSpace(p.VehicleNo),
		GroupSize:      int(p.GroupSize),
		TimeLimit:      strings.TrimSpace(p.TimeLimit),
		CheckinTime:    strings.TrimSpace(p.CheckinTime),
		IDCards:        []string(p.IDCards),
		Photo:          p.Photo,
	}
}

type checkoutBody struct {
	SelectedValues flexStrings `json:"selectedValues"`
	SelectedExit   string      `json:"selectedExit"`
}

type provisionBody struct {
	Password string  `json:"password"`
	Count    flexInt `json:"count"`
}
