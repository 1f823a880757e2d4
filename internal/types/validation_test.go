package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent() *Event {
	return &Event{
		ID:        "e1",
		Severity:  SeverityError,
		Resource:  "/checkout",
		AppName:   "shop",
		Timestamp: 1714550400000,
	}
}

func TestPayloadValidator_Event(t *testing.T) {
	v := NewPayloadValidator()

	tests := []struct {
		name       string
		mutate     func(e *Event)
		wantCode   ErrorCode
		wantFields []string
	}{
		{"valid", func(e *Event) {}, "", nil},
		{"missing id", func(e *Event) { e.ID = "" }, ErrCodeValidationMissingField, []string{"id"}},
		{"missing severity", func(e *Event) { e.Severity = "" }, ErrCodeValidationMissingField, []string{"severity"}},
		{"missing resource", func(e *Event) { e.Resource = "" }, ErrCodeValidationMissingField, []string{"resource"}},
		{"missing app name", func(e *Event) { e.AppName = "" }, ErrCodeValidationMissingField, []string{"app_name"}},
		{"unknown severity", func(e *Event) { e.Severity = "critical" }, ErrCodeValidationInvalidSeverity, []string{"severity"}},
		{"uppercase severity", func(e *Event) { e.Severity = "ERROR" }, ErrCodeValidationInvalidSeverity, []string{"severity"}},
		{
			"endpoint fields without id",
			func(e *Event) { e.Endpoint.Platform = "ios" },
			ErrCodeValidationMissingField,
			[]string{"endpoint_id"},
		},
		{
			"full endpoint",
			func(e *Event) {
				e.Endpoint = Endpoint{ID: "dev-1", Platform: "ios", OS: "iOS", OSVersion: "17.4", Country: "DE"}
			},
			"",
			nil,
		},
		{"country must be two letters", func(e *Event) { e.Endpoint = Endpoint{ID: "dev-1", Country: "DEU"} }, ErrCodeValidationMissingField, []string{"endpoint_country"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEvent()
			tt.mutate(e)

			err := v.Event(e)

			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, CodeOf(err))
			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantFields, appErr.Details["fields"])
		})
	}
}

func TestPayloadValidator_Nil(t *testing.T) {
	v := NewPayloadValidator()
	assert.Equal(t, ErrCodeValidationMissingField, CodeOf(v.Event(nil)))
	assert.Equal(t, ErrCodeValidationMissingField, CodeOf(v.Alert(nil)))
}

func TestPayloadValidator_Alert(t *testing.T) {
	v := NewPayloadValidator()

	assert.NoError(t, v.Alert(&Alert{ID: "e1", Severity: SeverityFatal, Resource: "/x"}))
	assert.Equal(t, ErrCodeValidationInvalidSeverity,
		CodeOf(v.Alert(&Alert{ID: "e1", Severity: SeverityWarning, Resource: "/x"})))
	assert.Equal(t, ErrCodeValidationMissingField,
		CodeOf(v.Alert(&Alert{ID: "e1", Severity: SeverityError})))
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		sev      Severity
		valid    bool
		critical bool
	}{
		{SeverityDebug, true, false},
		{SeverityInfo, true, false},
		{SeverityWarning, true, false},
		{SeverityError, true, true},
		{SeverityFatal, true, true},
		{Severity("warn"), false, false},
		{Severity(""), false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.sev), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.sev.Valid())
			assert.Equal(t, tt.critical, tt.sev.Critical())
		})
	}
}
