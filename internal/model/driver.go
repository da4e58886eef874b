package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Driver is a contributing factor to a risk score. It is a closed union
// of NamedFactor and ScoredFactor; callers switch on the concrete type.
type Driver interface {
	// Label is the human readable name of the factor.
	Label() string
	isDriver()
}

// Impact directions carried by ScoredFactor.
const (
	ImpactIncreases = "aumenta"
	ImpactReduces   = "reduce"
)

// NamedFactor is a factor known only by its description.
type NamedFactor struct {
	Description string
}

func (f NamedFactor) Label() string { return f.Description }
func (NamedFactor) isDriver()       {}

// ScoredFactor is a factor with a feature name and optionally the raw
// feature value and its signed contribution to the score.
type ScoredFactor struct {
	Feature      string
	Description  string
	Value        *float64
	Contribution *float64
	Impact       string
}

func (f ScoredFactor) Label() string {
	if f.Description != "" {
		return f.Description
	}
	if f.Feature != "" {
		return f.Feature
	}
	return "Factor desconocido"
}

func (ScoredFactor) isDriver() {}

// ContributionOrZero returns the contribution, treating a missing value as 0.
func (f ScoredFactor) ContributionOrZero() float64 {
	if f.Contribution == nil {
		return 0
	}
	return *f.Contribution
}

// Drivers is the ordered list stored in assessments.drivers. It decodes
// every historical shape (bare strings, objects with shap_value or
// contribution, objects with an explicit kind) and always encodes the
// tagged form.
type Drivers []Driver

type driverJSON struct {
	Kind         string   `json:"kind"`
	Feature      string   `json:"feature,omitempty"`
	Description  string   `json:"description,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	Contribution *float64 `json:"contribution,omitempty"`
	Impact       string   `json:"impact,omitempty"`
}

// wire form accepted on input; ShapValue is the engine's name for contribution.
type driverInput struct {
	Kind         string          `json:"kind"`
	Feature      string          `json:"feature"`
	Description  string          `json:"description"`
	Value        json.RawMessage `json:"value"`
	Contribution *float64        `json:"contribution"`
	ShapValue    *float64        `json:"shap_value"`
	Impact       string          `json:"impact"`
}

// MarshalJSON encodes every driver with an explicit kind.
func (d Drivers) MarshalJSON() ([]byte, error) {
	out := make([]driverJSON, 0, len(d))
	for _, drv := range d {
		switch f := drv.(type) {
		case NamedFactor:
			out = append(out, driverJSON{Kind: "named", Description: f.Description})
		case ScoredFactor:
			out = append(out, driverJSON{
				Kind:         "scored",
				Feature:      f.Feature,
				Description:  f.Description,
				Value:        f.Value,
				Contribution: f.Contribution,
				Impact:       f.Impact,
			})
		default:
			return nil, fmt.Errorf("unknown driver type %T", drv)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts a JSON array, or a JSON string containing an
// array (the engine has been known to double-encode), or null.
func (d *Drivers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = nil
		return nil
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		return d.UnmarshalJSON([]byte(inner))
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("drivers: %w", err)
	}
	out := make(Drivers, 0, len(raws))
	for i, raw := range raws {
		drv, err := decodeDriver(raw)
		if err != nil {
			return fmt.Errorf("drivers[%d]: %w", i, err)
		}
		if drv != nil {
			out = append(out, drv)
		}
	}
	*d = out
	return nil
}

func decodeDriver(raw json.RawMessage) (Driver, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return NamedFactor{Description: s}, nil
	}
	var in driverInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	if in.Kind == "named" || (in.Kind == "" && in.Feature == "" && in.Contribution == nil && in.ShapValue == nil) {
		return NamedFactor{Description: in.Description}, nil
	}
	f := ScoredFactor{
		Feature:      in.Feature,
		Description:  in.Description,
		Value:        parseLooseFloat(in.Value),
		Contribution: in.Contribution,
		Impact:       in.Impact,
	}
	if f.Contribution == nil {
		f.Contribution = in.ShapValue
	}
	if f.Impact == "" && f.Contribution != nil {
		f.Impact = ImpactIncreases
		if *f.Contribution < 0 {
			f.Impact = ImpactReduces
		}
	}
	return f, nil
}

// parseLooseFloat reads a number that may arrive quoted. Anything else
// (booleans, categorical strings) is dropped.
func parseLooseFloat(raw json.RawMessage) *float64 {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return &v
		}
	}
	return nil
}
