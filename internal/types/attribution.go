// attribution.go — Attribution Reporting source and trigger registration types.
package types

// Match predicates, in priority order.
const (
	MatchAggregatableTriggerData = "aggregatable_trigger_data"
	MatchAggregatableValues      = "aggregatable_values"
	MatchEventTriggerData        = "event_trigger_data"
)

// AggregatableTriggerData contributes key pieces to the named source keys.
type AggregatableTriggerData struct {
	KeyPiece   string   `json:"key_piece"`
	SourceKeys []string `json:"source_keys"`
}

// EventTriggerData is one event-level trigger data entry.
type EventTriggerData struct {
	TriggerData string `json:"trigger_data"`
	Priority    string `json:"priority,omitempty"`
}

// SourceRegistration is an Attribution-Reporting-Register-Source observation.
type SourceRegistration struct {
	ID               string            `json:"id"`
	RequestID        string            `json:"request_id,omitempty"`
	TabOrigin        string            `json:"tab_origin"`
	ReportingOrigin  string            `json:"reporting_origin"`
	SourceEventID    string            `json:"source_event_id,omitempty"`
	SourceType       string            `json:"source_type,omitempty"` // navigation | event
	DestinationSites []string          `json:"destination_sites,omitempty"`
	AggregationKeys  map[string]string `json:"aggregation_keys,omitempty"`
	TriggerData      []string          `json:"trigger_data,omitempty"`
	Result           string            `json:"result,omitempty"`
	Time             float64           `json:"time"`
	ElapsedMs        float64           `json:"elapsed_ms"`
	FormattedTime    string            `json:"formatted_time"`
}

// TriggerRegistration is an Attribution-Reporting-Register-Trigger observation.
// MatchedSourceID stays empty while the trigger is pending.
type TriggerRegistration struct {
	ID                      string                    `json:"id"`
	RequestID               string                    `json:"request_id,omitempty"`
	TabOrigin               string                    `json:"tab_origin"`
	ReportingOrigin         string                    `json:"reporting_origin"`
	AggregatableTriggerData []AggregatableTriggerData `json:"aggregatable_trigger_data,omitempty"`
	AggregatableValues      map[string]int            `json:"aggregatable_values,omitempty"`
	EventTriggerData        []EventTriggerData        `json:"event_trigger_data,omitempty"`
	Result                  string                    `json:"result,omitempty"`
	Time                    float64                   `json:"time"`
	ElapsedMs               float64                   `json:"elapsed_ms"`
	FormattedTime           string                    `json:"formatted_time"`
	MatchedSourceID         string                    `json:"matched_source_id,omitempty"`
	MatchedBy               string                    `json:"matched_by,omitempty"`
}

// AttributionSnapshot is the per-tab attribution view handed to UI surfaces.
type AttributionSnapshot struct {
	Sources  []SourceRegistration  `json:"sources"`
	Triggers []TriggerRegistration `json:"triggers"`
}
