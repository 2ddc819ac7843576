// Package analysis talks to the third-party facial analysis API. Any failure
// yields the fallback result; callers treat that as "analysis unavailable".
package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"golang.org/x/time/rate"

	"health-screening/imaging"
	"health-screening/metrics"
)

// DefaultTimeout caps one analysis call
const DefaultTimeout = 30 * time.Second

// Fallback values returned when analysis is unavailable
const (
	FallbackBMI         = 25.0
	FallbackBMICategory = "Normal weight"
	FallbackAge         = 35
	FallbackGender      = "Unknown"
)

// Result is the normalized analysis output
type Result struct {
	Success     bool    `json:"success"`
	BMI         float64 `json:"bmi"`
	BMIRange    string  `json:"bmiRange"`
	BMICategory string  `json:"bmiCategory"`
	Age         int     `json:"age"`
	AgeRange    string  `json:"ageRange"`
	Gender      string  `json:"gender"`
	Error       string  `json:"error,omitempty"`
}

// Fallback is the fixed result used whenever the API cannot answer
func Fallback(err error) Result {
	r := Result{
		Success:     false,
		BMI:         FallbackBMI,
		BMIRange:    BMIRange(FallbackBMI),
		BMICategory: FallbackBMICategory,
		Age:         FallbackAge,
		AgeRange:    AgeRange(FallbackAge),
		Gender:      FallbackGender,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Client handles communication with the facial analysis API
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	prepare    func([]byte) ([]byte, error)
}

// NewClient creates a client. ratePerSec <= 0 disables throttling.
func NewClient(url, apiKey string, timeout time.Duration, ratePerSec float64) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = int(ratePerSec) + 1
	}
	return &Client{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		prepare:    imaging.PrepareForAnalysis,
	}
}

type analyzeRequest struct {
	Image       string `json:"image"`
	ContentType string `json:"content_type"`
}

// Analyze sends the image and maps the response. It never returns an error;
// failures are reported through Result.Success and Result.Error.
func (c *Client) Analyze(ctx context.Context, image []byte) Result {
	start := time.Now()
	res, err := c.analyze(ctx, image)
	if err != nil {
		log.Warnf("Facial analysis unavailable, using fallback: %v", err)
		metrics.AnalysisDurationSeconds.WithLabelValues("fallback").Observe(time.Since(start).Seconds())
		metrics.AnalysisFallbackTotal.Inc()
		return Fallback(err)
	}
	metrics.AnalysisDurationSeconds.WithLabelValues("success").Observe(time.Since(start).Seconds())
	return res
}

func (c *Client) analyze(ctx context.Context, image []byte) (Result, error) {
	if c.url == "" {
		return Result{}, errors.New("analysis API is not configured")
	}
	if len(image) == 0 {
		return Result{}, errors.New("empty image")
	}

	payload := image
	contentType := http.DetectContentType(image)
	if prepared, err := c.prepare(image); err == nil {
		payload = prepared
		contentType = "image/jpeg"
	} else {
		log.Debugf("Sending original image bytes to analysis: %v", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("analysis throttle: %w", err)
	}

	body, err := json.Marshal(analyzeRequest{
		Image:       base64.StdEncoding.EncodeToString(payload),
		ContentType: contentType,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to call analysis API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read analysis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("analysis API returned status %d", resp.StatusCode)
	}

	return ParseResponse(raw)
}

// ParseResponse maps a raw API body into a Result. Field names vary between
// API versions, so alternates are accepted, optionally nested under "data".
func ParseResponse(raw []byte) (Result, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Result{}, fmt.Errorf("failed to decode analysis response: %w", err)
	}

	if ok, present := body["success"].(bool); present && !ok {
		msg := firstString(body, "error", "message")
		if msg == "" {
			msg = "analysis API reported failure"
		}
		return Result{}, errors.New(msg)
	}

	fields := body
	if data, ok := body["data"].(map[string]interface{}); ok {
		fields = data
	}

	bmi, ok := firstNumber(fields, "bmi", "estimated_bmi", "bmi_estimate", "estimatedBMI")
	if !ok || bmi <= 0 {
		return Result{}, errors.New("analysis response has no BMI")
	}

	res := Result{
		Success:     true,
		BMI:         round1(bmi),
		BMIRange:    BMIRange(bmi),
		BMICategory: BMICategory(bmi),
		Gender:      FallbackGender,
	}
	if age, ok := firstNumber(fields, "age", "estimated_age", "age_estimate", "estimatedAge"); ok {
		res.Age = int(age)
		res.AgeRange = AgeRange(res.Age)
	}
	if g := firstString(fields, "gender", "sex", "estimated_gender", "estimatedGender"); g != "" {
		res.Gender = normalizeGender(g)
	}
	return res, nil
}

// BMICategory returns the textual bucket for a BMI value
func BMICategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Underweight"
	case bmi < 25:
		return "Normal weight"
	case bmi < 30:
		return "Overweight"
	}
	return "Obese"
}

// BMIRange returns the textual range of the bucket a BMI falls in
func BMIRange(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "<18.5"
	case bmi < 25:
		return "18.5-24.9"
	case bmi < 30:
		return "25.0-29.9"
	}
	return "30.0+"
}

// AgeRange floors age to its decade, e.g. 37 -> "30-39"
func AgeRange(age int) string {
	if age < 0 {
		age = 0
	}
	lo := age / 10 * 10
	return fmt.Sprintf("%d-%d", lo, lo+9)
}

func normalizeGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "m", "male", "man":
		return "Male"
	case "f", "female", "woman":
		return "Female"
	}
	return FallbackGender
}

func firstNumber(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}
