package domain

import "time"

type Modality string

const (
	ModalityChat Modality = "chat"
	ModalityCall Modality = "call"
)

func (m Modality) IsValid() bool {
	return m == ModalityChat || m == ModalityCall
}

// SessionRequest is immutable once created. It survives only until a
// Session is produced from it or the request is abandoned.
type SessionRequest struct {
	CustomerID  string
	AdvisorID   string
	Modality    Modality
	RatePerMin  float64
	RequestedAt time.Time
}

func NewSessionRequest(customerID, advisorID string, modality Modality, ratePerMin float64) SessionRequest {
	return SessionRequest{
		CustomerID:  customerID,
		AdvisorID:   advisorID,
		Modality:    modality,
		RatePerMin:  ratePerMin,
		RequestedAt: time.Now(),
	}
}

func (r SessionRequest) IsValid() bool {
	return r.CustomerID != "" && r.AdvisorID != "" && r.Modality.IsValid() && r.RatePerMin > 0
}
