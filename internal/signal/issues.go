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

// IssueSource pulls recently opened or commented tickets from the issue
// tracker's activity endpoint.
//
// Expected response shape:
//
//	{"issues": [{"key": "KB-12", "summary": "...", "updated_at": 1719410400}]}
type IssueSource struct {
	baseURL string
	token   string
	project string
	weight  float64
	client  *http.Client
}

type issueResponse struct {
	Issues []struct {
		Key       string `json:"key"`
		Summary   string `json:"summary"`
		UpdatedAt int64  `json:"updated_at"`
	} `json:"issues"`
}

func NewIssueSource(baseURL, token, project string, weight float64, timeout time.Duration) *IssueSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IssueSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		project: project,
		weight:  weight,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *IssueSource) Name() string {
	return "issues"
}

func (s *IssueSource) Weight() float64 {
	return s.weight
}

func (s *IssueSource) Fetch(ctx context.Context, scope model.Scope, since time.Time) ([]model.RawSignal, error) {
	params := url.Values{}
	params.Set("project", s.project)
	params.Set("since", strconv.FormatInt(since.Unix(), 10))
	params.Set("limit", strconv.Itoa(fetchLimit))
	endpoint := s.baseURL + "/api/issues/recent?" + params.Encode()

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
		return nil, fmt.Errorf("issue tracker request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	signals := make([]model.RawSignal, 0, len(out.Issues))
	for _, issue := range out.Issues {
		summary := strings.TrimSpace(issue.Summary)
		if summary == "" {
			continue
		}
		signals = append(signals, model.RawSignal{
			Source:     s.Name(),
			Kind:       model.SignalTicket,
			Text:       summary,
			Ref:        issue.Key,
			OccurredAt: issue.UpdatedAt,
		})
	}
	return signals, nil
}
