package api

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SchemaVersion is the evaluation record schema version written by `evalsync add`
// when a record does not carry one.
const SchemaVersion = "0.0.1"

// EvaluationRecord is one evaluation log as produced by a leaderboard adapter.
// Only the fields needed for identity and validation are typed; every other
// field is carried through untouched by the flattener.
type EvaluationRecord struct {
	// Version of the record schema.
	SchemaVersion string `json:"schema_version" validate:"required"`
	// EvaluationID identifies the evaluation run at the source.
	EvaluationID string `json:"evaluation_id" validate:"required"`
	// RetrievedTimestamp is when the adapter fetched the source data.
	RetrievedTimestamp json.RawMessage `json:"retrieved_timestamp" validate:"required,present"`
	// SourceData describes where the raw results came from (URLs or a dataset reference).
	SourceData        json.RawMessage    `json:"source_data" validate:"required,present"`
	SourceMetadata    *SourceMetadata    `json:"source_metadata" validate:"required"`
	ModelInfo         *ModelInfo         `json:"model_info" validate:"required"`
	EvaluationResults []EvaluationResult `json:"evaluation_results" validate:"required,dive"`
	// AdditionalDetails is free-form.
	AdditionalDetails json.RawMessage `json:"additional_details,omitempty"`
}

// SourceMetadata describes the publisher of the results.
type SourceMetadata struct {
	// SourceName is the leaderboard name; it becomes the table split.
	SourceName                string `json:"source_name,omitempty"`
	SourceType                string `json:"source_type,omitempty"`
	SourceOrganizationName    string `json:"source_organization_name" validate:"required"`
	SourceOrganizationURL     string `json:"source_organization_url,omitempty"`
	SourceOrganizationLogoURL string `json:"source_organization_logo_url,omitempty"`
	EvaluatorRelationship     string `json:"evaluator_relationship" validate:"required"`
}

// ModelInfo identifies the evaluated model.
type ModelInfo struct {
	Name              string `json:"name" validate:"required"`
	ID                string `json:"id" validate:"required"`
	Developer         string `json:"developer" validate:"required"`
	InferencePlatform string `json:"inference_platform,omitempty"`
}

// EvaluationResult is one metric outcome of the evaluation.
type EvaluationResult struct {
	EvaluationName string        `json:"evaluation_name" validate:"required"`
	MetricConfig   *MetricConfig `json:"metric_config" validate:"required"`
	ScoreDetails   *ScoreDetails `json:"score_details" validate:"required"`
}

// MetricConfig describes how a metric is read. Other keys are free-form.
type MetricConfig struct {
	LowerIsBetter *bool `json:"lower_is_better" validate:"required"`
}

// ScoreDetails holds the metric outcome. Other keys are free-form.
type ScoreDetails struct {
	Score *float64 `json:"score" validate:"required"`
}

// recordValidate checks EvaluationRecord tags. Field names in its errors are
// the JSON names.
var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New()
	recordValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// A raw JSON field holding null is as absent as a missing one.
	_ = recordValidate.RegisterValidation("present", func(fl validator.FieldLevel) bool {
		raw, ok := fl.Field().Interface().(json.RawMessage)
		return ok && len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
	})
}

// Validate checks that every required field is present.
func (r *EvaluationRecord) Validate() error {
	return recordValidate.Struct(r)
}
