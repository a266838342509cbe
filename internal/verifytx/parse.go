package verifytx

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"verifytx_gateway/internal/model"
)

// amount accepts JSON numbers and numeric strings. Anything else, such as
// "N/A", leaves it unset.
type amount struct {
	value float64
	set   bool
}

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
		if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
			*a = amount{value: f, set: true}
		}
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*a = amount{value: f, set: true}
	}
	return nil
}

// text accepts strings and numbers; other JSON values decode to "".
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			*t = text(s)
		}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = text(n.String())
	}
	return nil
}

type wireDeductible struct {
	Amount    amount `json:"amount"`
	Met       amount `json:"met"`
	Remaining amount `json:"remaining"`
}

type wireOutOfPocket struct {
	Max       amount `json:"max"`
	Met       amount `json:"met"`
	Remaining amount `json:"remaining"`
}

type wireNetwork struct {
	Copay       amount           `json:"copay"`
	Deductible  *wireDeductible  `json:"deductible"`
	OutOfPocket *wireOutOfPocket `json:"out_of_pocket"`
	Coinsurance amount           `json:"coinsurance"`
}

type wireBenefit struct {
	Type       text         `json:"type"`
	InNetwork  *wireNetwork `json:"in_network"`
	OutNetwork *wireNetwork `json:"out_network"`
}

type wireSubscriber struct {
	FirstName text `json:"first_name"`
	LastName  text `json:"last_name"`
	MemberID  text `json:"member_id"`
}

type vobResponse struct {
	ID                string          `json:"_id"`
	Status            string          `json:"status"`
	AsOfDate          string          `json:"as_of_date"`
	Benefits          []wireBenefit   `json:"benefits"`
	Plans             json.RawMessage `json:"plans"`
	SubscriberDetails *wireSubscriber `json:"subscriber_details"`
	PayerID           text            `json:"payer_id"`
	PayerName         text            `json:"payer_name"`
	Error             json.RawMessage `json:"error"`
	ErrorRef          string          `json:"error_ref"`
}

func parseVOB(body []byte) (*model.VOB, error) {
	var resp vobResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	vob := &model.VOB{
		ID:       resp.ID,
		Status:   resp.Status,
		Verified: resp.Status == model.StatusActive,
		AsOfDate: resp.AsOfDate,
		ErrorRef: resp.ErrorRef,
	}
	if vob.Status == "" {
		vob.Status = model.StatusUnknown
	}
	if len(resp.Error) > 0 {
		vob.Error = stringOrMessage(resp.Error)
	}

	if len(resp.Benefits) > 0 {
		vob.Benefits = make([]model.BenefitLine, 0, len(resp.Benefits))
		for _, b := range resp.Benefits {
			line := model.BenefitLine{
				Type:       string(b.Type),
				InNetwork:  parseNetwork(b.InNetwork),
				OutNetwork: parseNetwork(b.OutNetwork),
			}
			if line.Type == "" {
				line.Type = model.StatusUnknown
			}
			vob.Benefits = append(vob.Benefits, line)
		}
	}

	if !emptyJSON(resp.Plans) {
		vob.Plans = resp.Plans
	}

	if s := resp.SubscriberDetails; s != nil && *s != (wireSubscriber{}) {
		vob.Subscriber = &model.Subscriber{
			FirstName: string(s.FirstName),
			LastName:  string(s.LastName),
			MemberID:  string(s.MemberID),
		}
	}

	if resp.PayerName != "" {
		vob.Payer = &model.Payer{ID: string(resp.PayerID), Name: string(resp.PayerName)}
	}

	return vob, nil
}

func parseNetwork(n *wireNetwork) *model.NetworkBenefit {
	if n == nil {
		return nil
	}

	out := &model.NetworkBenefit{}
	if n.Copay.set {
		v := n.Copay.value
		out.Copay = &v
	}
	if d := n.Deductible; d != nil {
		out.Deductible = &model.Deductible{
			Amount:    d.Amount.value,
			Met:       d.Met.value,
			Remaining: d.Remaining.value,
		}
	}
	if o := n.OutOfPocket; o != nil {
		out.OutOfPocket = &model.OutOfPocket{
			Max:       o.Max.value,
			Met:       o.Met.value,
			Remaining: o.Remaining.value,
		}
	}
	if n.Coinsurance.set {
		v := n.Coinsurance.value
		out.Coinsurance = &v
	}
	return out
}

func emptyJSON(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "[]", "{}", `""`, "false", "0":
		return true
	}
	return false
}
