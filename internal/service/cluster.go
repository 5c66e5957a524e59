package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/helmsan/kompass/internal/model"
)

type weightedSignal struct {
	model.RawSignal
	weight float64
}

// dedupSignals drops exact repeats of the same signal so one noisy source
// replaying an event cannot inflate a topic's frequency.
func dedupSignals(signals []weightedSignal) []weightedSignal {
	seen := make(map[string]bool, len(signals))
	var out []weightedSignal
	for _, sig := range signals {
		text := canonicalize(sig.Text)
		if text == "" {
			continue
		}
		key := sig.Source + "\x00" + sig.Ref + "\x00" + text
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sig)
	}
	return out
}

type topicCluster struct {
	signals  []weightedSignal
	centroid []float32
	size     int
}

// cluster groups near-duplicate signal texts. Embedding-based greedy
// clustering against running centroids; when the embedder cannot serve the
// batch, canonical exact-text grouping keeps the cycle alive.
func (s *ZeitgeistService) cluster(ctx context.Context, signals []weightedSignal) []*topicCluster {
	if s.embedder != nil {
		clusters, ok := s.clusterByEmbedding(ctx, signals)
		if ok {
			return clusters
		}
		logutil.GetLogger(ctx).Warn("embedding clustering unavailable, grouping by exact text")
	}
	return clusterByText(signals)
}

func (s *ZeitgeistService) clusterByEmbedding(ctx context.Context, signals []weightedSignal) ([]*topicCluster, bool) {
	var clusters []*topicCluster
	for _, sig := range signals {
		vec, err := s.embedder.Embed(ctx, sig.Text, "CLUSTERING")
		if err != nil {
			logutil.GetLogger(ctx).Warn("embed signal failed", zap.String("source", sig.Source), zap.Error(err))
			return nil, false
		}
		var best *topicCluster
		bestScore := 0.0
		for _, c := range clusters {
			score := cosineSimilarity(vec, c.centroid)
			if score >= s.cfg.ClusterThreshold && score > bestScore {
				best = c
				bestScore = score
			}
		}
		if best == nil {
			clusters = append(clusters, &topicCluster{
				signals:  []weightedSignal{sig},
				centroid: append([]float32(nil), vec...),
				size:     1,
			})
			continue
		}
		best.signals = append(best.signals, sig)
		best.absorb(vec)
	}
	return clusters, true
}

func clusterByText(signals []weightedSignal) []*topicCluster {
	byText := map[string]*topicCluster{}
	var order []string
	for _, sig := range signals {
		key := canonicalize(sig.Text)
		c, ok := byText[key]
		if !ok {
			c = &topicCluster{}
			byText[key] = c
			order = append(order, key)
		}
		c.signals = append(c.signals, sig)
		c.size++
	}
	clusters := make([]*topicCluster, 0, len(order))
	for _, key := range order {
		clusters = append(clusters, byText[key])
	}
	return clusters
}

// absorb folds a new member vector into the running centroid mean.
func (c *topicCluster) absorb(vec []float32) {
	c.size++
	n := float32(c.size)
	for i := range c.centroid {
		if i < len(vec) {
			c.centroid[i] += (vec[i] - c.centroid[i]) / n
		}
	}
}

func (c *topicCluster) toTopic(now time.Time, decayRate float64) model.Topic {
	question := c.representativeText()
	perSource := map[string]*model.TopicSource{}
	var score float64
	var lastSeen int64
	for _, sig := range c.signals {
		ageDays := now.Sub(time.Unix(sig.OccurredAt, 0)).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		score += sig.weight * math.Exp(-decayRate*ageDays)
		if sig.OccurredAt > lastSeen {
			lastSeen = sig.OccurredAt
		}
		entry, ok := perSource[sig.Source]
		if !ok {
			entry = &model.TopicSource{Type: sig.Source, Weight: sig.weight}
			perSource[sig.Source] = entry
		}
		entry.Count++
	}
	sources := make([]model.TopicSource, 0, len(perSource))
	for _, entry := range perSource {
		sources = append(sources, *entry)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Type < sources[j].Type })
	return model.Topic{
		ID:           topicID(question),
		QuestionText: question,
		Category:     categorize(c.signals),
		RawScore:     score,
		Frequency:    len(c.signals),
		Sources:      sources,
		LastSeen:     lastSeen,
	}
}

// representativeText picks the most common canonical text in the cluster;
// ties go to the longer original phrasing.
func (c *topicCluster) representativeText() string {
	counts := map[string]int{}
	original := map[string]string{}
	for _, sig := range c.signals {
		key := canonicalize(sig.Text)
		counts[key]++
		if len(sig.Text) > len(original[key]) {
			original[key] = strings.TrimSpace(sig.Text)
		}
	}
	bestKey := ""
	for key := range counts {
		if bestKey == "" {
			bestKey = key
			continue
		}
		if counts[key] > counts[bestKey] ||
			(counts[key] == counts[bestKey] && len(original[key]) > len(original[bestKey])) {
			bestKey = key
		}
	}
	return original[bestKey]
}

func categorize(signals []weightedSignal) model.TopicCategory {
	kinds := map[model.SignalKind]int{}
	for _, sig := range signals {
		kinds[sig.Kind]++
	}
	switch {
	case kinds[model.SignalTestFailure] > 0 || kinds[model.SignalComplaint] > 0:
		return model.CategoryCommonProblem
	case kinds[model.SignalDocEdit] > 0 && kinds[model.SignalTicket] == 0:
		return model.CategoryDocumentation
	}
	text := canonicalize(signals[0].Text)
	switch {
	case strings.Contains(text, "how to") || strings.Contains(text, "how do") ||
		strings.Contains(text, "where is") || strings.Contains(text, "document"):
		return model.CategoryDocumentation
	case strings.Contains(text, "feature") || strings.Contains(text, "support for") ||
		strings.HasPrefix(text, "add "):
		return model.CategoryNewFeature
	case kinds[model.SignalTicket] > 0:
		return model.CategoryCommonProblem
	}
	return model.CategoryOther
}

func canonicalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	fields := strings.Fields(lowered)
	joined := strings.Join(fields, " ")
	return strings.Trim(joined, " ?!.")
}

func topicID(question string) string {
	hash := sha256.Sum256([]byte(canonicalize(question)))
	return hex.EncodeToString(hash[:6])
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
