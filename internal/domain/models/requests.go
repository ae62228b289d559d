package models

// Requests for the signal read API. Bound by echo, then defaults, then validator.

type ListSignalsRequest struct {
	Symbol    string `query:"symbol" json:"symbol"`
	Status    string `query:"status" json:"status" validate:"omitempty,oneof=OPEN CLOSED EXPIRED"`
	Outcome   string `query:"outcome" json:"outcome" validate:"omitempty,oneof=WIN LOSS EXPIRED"`
	Direction string `query:"direction" json:"direction" validate:"omitempty,oneof=LONG SHORT"`
	From      string `query:"from" json:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To        string `query:"to" json:"to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit     int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type GetSignalRequest struct {
	ID string `param:"id" json:"id" validate:"required,uuid"`
}
