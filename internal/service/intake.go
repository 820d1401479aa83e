package service

import (
	"salonbook/internal/models"
)

// The HTTP intake accepts booking bodies from every generation of client:
// the web app posts snake_case, the older channel webhooks camelCase with
// their own field names. Requests are therefore decoded as raw records and
// resolved through the alias table instead of strict structs.

// ReservationRequestFromRecord builds a reservation request from a
// loosely-shaped JSON record.
func ReservationRequestFromRecord(raw map[string]any) ReservationRequest {
	return ReservationRequest{
		Date:          models.StringField(raw, "date"),
		StartTime:     models.StringField(raw, "time"),
		Hours:         models.IntField(raw, "hours"),
		ProviderID:    models.StringField(raw, "provider_id"),
		CustomerName:  models.StringField(raw, "customer_name"),
		Phone:         models.StringField(raw, "phone"),
		Note:          models.StringField(raw, "note"),
		ServiceType:   models.StringField(raw, "service_type"),
		Channel:       models.StringField(raw, "channel"),
		ChannelUserID: models.StringField(raw, "channel_user_id"),
		Owner:         models.StringField(raw, "owner"),
	}
}

// ConfirmRequestFromRecord builds a confirmation request from a
// loosely-shaped JSON record. The receipt image is a transport concern and
// stays with the HTTP handler.
func ConfirmRequestFromRecord(raw map[string]any) ConfirmRequest {
	req := ConfirmRequest{
		RefCode: models.StringField(raw, "ref_code"),
		Owner:   models.StringField(raw, "owner"),
	}
	if v, ok := models.FloatField(raw, "amount_read"); ok {
		req.AmountRead = &v
	}
	return req
}
