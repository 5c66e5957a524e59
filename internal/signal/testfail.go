package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helmsan/kompass/internal/model"
)

// TestFailureSource pulls recently failing test names from the test
// dashboard.
//
// Expected response shape:
//
//	{"failures": [{"suite": "export", "test_name": "audio_roundtrip", "failed_at": 1719410400}]}
type TestFailureSource struct {
	baseURL string
	token   string
	weight  float64
	client  *http.Client
}

type testFailureResponse struct {
	Failures []struct {
		Suite    string `json:"suite"`
		TestName string `json:"test_name"`
		FailedAt int64  `json:"failed_at"`
	} `json:"failures"`
}

func NewTestFailureSource(baseURL, token string, weight float64, timeout time.Duration) *TestFailureSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TestFailureSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		weight:  weight,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *TestFailureSource) Name() string {
	return "test_failures"
}

func (s *TestFailureSource) Weight() float64 {
	return s.weight
}

func (s *TestFailureSource) Fetch(ctx context.Context, scope model.Scope, since time.Time) ([]model.RawSignal, error) {
	params := url.Values{}
	params.Set("since", strconv.FormatInt(since.Unix(), 10))
	params.Set("limit", strconv.Itoa(fetchLimit))
	endpoint := s.baseURL + "/api/failures/recent?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("test dashboard request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out testFailureResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	signals := make([]model.RawSignal, 0, len(out.Failures))
	for _, failure := range out.Failures {
		name := strings.TrimSpace(failure.TestName)
		if name == "" {
			continue
		}
		text := name
		if failure.Suite != "" {
			text = failure.Suite + ": " + name
		}
		signals = append(signals, model.RawSignal{
			Source:     s.Name(),
			Kind:       model.SignalTestFailure,
			Text:       text,
			Ref:        failure.Suite + "/" + name,
			OccurredAt: failure.FailedAt,
		})
	}
	return signals, nil
}
