package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata is a tagged union of source-type specific shapes. Exactly one of
// the typed fields is set for a known source type; anything a crawler sends
// that does not match a known shape lands in Other untouched.
type Metadata struct {
	Kind  SourceType      `json:"kind"`
	Wiki  *WikiMeta       `json:"wiki,omitempty"`
	Issue *IssueMeta      `json:"issue,omitempty"`
	Email *EmailMeta      `json:"email,omitempty"`
	Git   *GitMeta        `json:"git,omitempty"`
	Crawl *CrawlMeta      `json:"crawl,omitempty"`
	Other json.RawMessage `json:"other,omitempty"`
}

type WikiMeta struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Author   string `json:"author,omitempty"`
	EditedAt int64  `json:"edited_at,omitempty"`
}

type IssueMeta struct {
	Key       string   `json:"key"`
	Summary   string   `json:"summary"`
	Status    string   `json:"status,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	UpdatedAt int64    `json:"updated_at,omitempty"`
}

type EmailMeta struct {
	Subject        string `json:"subject"`
	From           string `json:"from,omitempty"`
	SentAt         int64  `json:"sent_at,omitempty"`
	HasAttachments bool   `json:"has_attachments,omitempty"`
}

type GitMeta struct {
	Repo   string `json:"repo"`
	Ref    string `json:"ref,omitempty"`
	Path   string `json:"path,omitempty"`
	Author string `json:"author,omitempty"`
}

type CrawlMeta struct {
	Title     string `json:"title,omitempty"`
	URL       string `json:"url"`
	FetchedAt int64  `json:"fetched_at,omitempty"`
}

// ParseMetadata validates a raw metadata payload against the shape expected
// for the given source type. Payloads that do not decode into the known
// shape are kept verbatim in Other rather than rejected.
func ParseMetadata(sourceType SourceType, raw json.RawMessage) (Metadata, error) {
	meta := Metadata{Kind: sourceType}
	if len(raw) == 0 {
		return meta, nil
	}
	var err error
	switch sourceType {
	case SourceWiki:
		m := &WikiMeta{}
		if err = strictDecode(raw, m); err == nil {
			meta.Wiki = m
		}
	case SourceIssue:
		m := &IssueMeta{}
		if err = strictDecode(raw, m); err == nil {
			meta.Issue = m
		}
	case SourceEmail:
		m := &EmailMeta{}
		if err = strictDecode(raw, m); err == nil {
			meta.Email = m
		}
	case SourceGit:
		m := &GitMeta{}
		if err = strictDecode(raw, m); err == nil {
			meta.Git = m
		}
	case SourceCrawl:
		m := &CrawlMeta{}
		if err = strictDecode(raw, m); err == nil {
			meta.Crawl = m
		}
	case SourceKnowledge:
		// curated entries carry free-form metadata
		err = fmt.Errorf("no typed shape")
	default:
		return meta, fmt.Errorf("unknown source type: %s", sourceType)
	}
	if err != nil {
		if !json.Valid(raw) {
			return meta, fmt.Errorf("metadata is not valid json")
		}
		meta.Other = append(json.RawMessage(nil), raw...)
	}
	return meta, nil
}

// Title returns the best display title the metadata carries.
func (m Metadata) Title() string {
	switch {
	case m.Wiki != nil:
		return m.Wiki.Title
	case m.Issue != nil:
		return strings.TrimSpace(m.Issue.Key + " " + m.Issue.Summary)
	case m.Email != nil:
		return m.Email.Subject
	case m.Git != nil:
		return m.Git.Repo + ":" + m.Git.Path
	case m.Crawl != nil:
		if m.Crawl.Title != "" {
			return m.Crawl.Title
		}
		return m.Crawl.URL
	}
	return ""
}

func strictDecode(raw json.RawMessage, dst interface{}) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
