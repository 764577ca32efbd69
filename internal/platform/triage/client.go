// Package triage talks to the external AI triage/vision service. The
// service is advisory only: every call here can fail without blocking the
// durable-record path, and no error from it ever triggers a logout.
package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/clinicore/intake/internal/platform/apperr"
)

// Opinion is the AI service's suggestion for one patient context.
type Opinion struct {
	Diagnosis             string `json:"diagnosis"`
	Urgency               string `json:"urgency"`
	ImagingRecommendation string `json:"imaging_recommendation"`
	SafetyOverride        bool   `json:"safety_override"`
}

// TrainingSignal confirms an opinion the clinician agreed with.
type TrainingSignal struct {
	PatientContext map[string]interface{} `json:"patient_context"`
	AIResponse     string                 `json:"ai_response"`
	Accepted       bool                   `json:"accepted"`
}

// CorrectionSignal carries the clinician's corrected diagnosis.
type CorrectionSignal struct {
	PatientContext     map[string]interface{} `json:"patient_context"`
	AIResponse         string                 `json:"ai_response"`
	CorrectedDiagnosis string                 `json:"corrected_diagnosis"`
	CorrectionReason   string                 `json:"correction_reason"`
}

// Client is the surface the feedback loop depends on; the HTTP
// implementation below is swapped for a mock in tests.
type Client interface {
	RequestOpinion(ctx context.Context, patientContext map[string]interface{}) (*Opinion, error)
	SendTraining(ctx context.Context, sig TrainingSignal) error
	SendCorrection(ctx context.Context, sig CorrectionSignal) error
}

type HTTPClient struct {
	httpClient *resty.Client
	logger     zerolog.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPClient{httpClient: client, logger: logger}
}

type opinionResponse struct {
	Status  int     `json:"status"`
	Message string  `json:"message"`
	Opinion Opinion `json:"opinion"`
}

func (c *HTTPClient) RequestOpinion(ctx context.Context, patientContext map[string]interface{}) (*Opinion, error) {
	var response opinionResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"patient_context": patientContext}).
		SetResult(&response).
		Post("/triage/opinion")
	if err != nil {
		return nil, apperr.Unavailable("triage", err)
	}
	if resp.IsError() {
		return nil, apperr.Unavailable("triage", fmt.Errorf("status %d", resp.StatusCode()))
	}
	if response.Status != 0 {
		return nil, apperr.Unavailable("triage", fmt.Errorf("%s (status %d)", response.Message, response.Status))
	}
	if response.Opinion.Diagnosis == "" {
		return nil, apperr.Unavailable("triage", fmt.Errorf("response carried no diagnosis"))
	}
	return &response.Opinion, nil
}

func (c *HTTPClient) SendTraining(ctx context.Context, sig TrainingSignal) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(sig).
		Post("/triage/training")
	if err != nil {
		return apperr.Unavailable("triage", err)
	}
	if resp.IsError() {
		return apperr.Unavailable("triage", fmt.Errorf("status %d", resp.StatusCode()))
	}
	c.logger.Info().Msg("training signal delivered")
	return nil
}

func (c *HTTPClient) SendCorrection(ctx context.Context, sig CorrectionSignal) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(sig).
		Post("/triage/correction")
	if err != nil {
		return apperr.Unavailable("triage", err)
	}
	if resp.IsError() {
		return apperr.Unavailable("triage", fmt.Errorf("status %d", resp.StatusCode()))
	}
	c.logger.Info().Msg("correction signal delivered")
	return nil
}
