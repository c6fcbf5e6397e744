package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"bargetrader/internal/book"
	"bargetrader/internal/domain"
	"bargetrader/internal/matcher"
)

type JoinRequest struct {
	Name string `json:"name"`
}

// QuoteRequest changes a participant's quote. A price may be sent as a JSON
// number or string; an omitted or null side is left unchanged.
type QuoteRequest struct {
	ParticipantID string          `json:"participant_id"`
	Bid           json.RawMessage `json:"bid,omitempty"`
	Offer         json.RawMessage `json:"offer,omitempty"`
	ClearBid      bool            `json:"clear_bid,omitempty"`
	ClearOffer    bool            `json:"clear_offer,omitempty"`
}

type TradeRequest struct {
	RequesterID    string          `json:"requester_id"`
	CounterpartyID string          `json:"counterparty_id"`
	Action         string          `json:"action"` // "buy" or "sell"
	Price          json.RawMessage `json:"price"`
}

// maxBodyBytes caps request bodies; every request type is a few short
// fields.
const maxBodyBytes = 16 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Validationf("request body must be valid JSON: %v", err)
	}
	return nil
}

func rawPresent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// parseRawPrice accepts 12, 12.5, "12.50" and "$12.50".
func parseRawPrice(field string, raw json.RawMessage) (decimal.Decimal, error) {
	if !rawPresent(raw) {
		return decimal.Zero, domain.Validationf("%s: this field is required", field)
	}
	s := string(bytes.TrimSpace(raw))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, domain.Validationf("%s: enter a number", field)
		}
	}
	return domain.ParsePrice(field, s)
}

func sideChange(field string, raw json.RawMessage, clear bool) (book.SideChange, error) {
	if clear {
		if rawPresent(raw) {
			return book.SideChange{}, domain.Validationf("%s: cannot set and clear at once", field)
		}
		return book.ClearSide(), nil
	}
	if !rawPresent(raw) {
		return book.KeepSide(), nil
	}
	p, err := parseRawPrice(field, raw)
	if err != nil {
		return book.SideChange{}, err
	}
	return book.SetSide(p), nil
}

// changes converts the request into book side changes, reporting every
// invalid field at once.
func (q QuoteRequest) changes() (bid, offer book.SideChange, err error) {
	var errs []error
	if strings.TrimSpace(q.ParticipantID) == "" {
		errs = append(errs, domain.Validationf("participant_id: this field is required"))
	}
	bid, bidErr := sideChange("bid", q.Bid, q.ClearBid)
	offer, offerErr := sideChange("offer", q.Offer, q.ClearOffer)
	errs = append(errs, bidErr, offerErr)
	if err := domain.Join(errs...); err != nil {
		return book.SideChange{}, book.SideChange{}, err
	}
	return bid, offer, nil
}

func (t TradeRequest) request() (matcher.Request, error) {
	var errs []error
	if strings.TrimSpace(t.RequesterID) == "" {
		errs = append(errs, domain.Validationf("requester_id: this field is required"))
	}
	if strings.TrimSpace(t.CounterpartyID) == "" {
		errs = append(errs, domain.Validationf("counterparty_id: this field is required"))
	}
	side, sideErr := domain.ParseSide(t.Action)
	price, priceErr := parseRawPrice("price", t.Price)
	errs = append(errs, sideErr, priceErr)
	if err := domain.Join(errs...); err != nil {
		return matcher.Request{}, err
	}
	return matcher.Request{
		RequesterID:    t.RequesterID,
		CounterpartyID: t.CounterpartyID,
		Side:           side,
		ExpectedPrice:  price,
	}, nil
}
