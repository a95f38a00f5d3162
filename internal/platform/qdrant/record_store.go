package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

var recordIDNamespace = uuid.MustParse("6a3c2f0e-8d1b-4f57-9e2a-31c54b7d9f10")

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type scrollPoint struct {
	ID      json.RawMessage `json:"id"`
	Payload map[string]any  `json:"payload"`
	Vector  json.RawMessage `json:"vector"`
}

type scrollResult struct {
	Points         []scrollPoint   `json:"points"`
	NextPageOffset json.RawMessage `json:"next_page_offset"`
}

type Option func(*RecordStore)

func WithHTTPClient(hc *http.Client) Option {
	return func(s *RecordStore) { s.http = hc }
}

// RecordStore reads article records and their embeddings from Qdrant collections.
type RecordStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

func NewRecordStore(log *logger.Logger, cfg Config, opts ...Option) (*RecordStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s := &RecordStore{
		log:     log.With("service", "QdrantRecordStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DefaultCollection is the collection name assumed when none is listed for a topic.
func (s *RecordStore) DefaultCollection(topic string) domain.CollectionRef {
	return domain.CollectionRef{Name: strings.TrimSpace(topic) + s.cfg.Suffix, Topic: topic}
}

// Ping checks /readyz.
func (s *RecordStore) Ping(ctx context.Context) error {
	const op = "ready_check"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	s.authorize(req)
	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

// ListCollections returns collections whose name starts with the topic, sorted by name.
func (s *RecordStore) ListCollections(ctx context.Context, topic string) ([]domain.CollectionRef, error) {
	const op = "list_collections"
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, opErr(op, OperationErrorValidation, "topic is required", nil)
	}
	var result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := s.doJSON(ctx, op, http.MethodGet, "/collections", nil, &result); err != nil {
		return nil, err
	}
	prefix := strings.ToLower(topic)
	var out []domain.CollectionRef
	for _, c := range result.Collections {
		if strings.HasPrefix(strings.ToLower(c.Name), prefix) {
			out = append(out, domain.CollectionRef{Name: c.Name, Topic: topic})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *RecordStore) GetRecords(ctx context.Context, ref domain.CollectionRef, limit int) ([]domain.ArticleRecord, error) {
	return s.GetRecordsFiltered(ctx, ref, limit, nil)
}

// GetRecordsFiltered scrolls up to limit points (with vectors and payload) matching filter.
// Records come back in store order; points whose vector has the wrong dimension are skipped.
func (s *RecordStore) GetRecordsFiltered(ctx context.Context, ref domain.CollectionRef, limit int, filter map[string]any) ([]domain.ArticleRecord, error) {
	const op = "scroll"
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		return nil, opErr(op, OperationErrorValidation, "collection name is required", nil)
	}
	if limit <= 0 {
		return nil, opErr(op, OperationErrorValidation, "limit must be positive", nil)
	}
	qFilter, err := TranslateFilter(filter)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ArticleRecord, 0, min(limit, 1024))
	skipped := 0
	var offset json.RawMessage
	for len(out) < limit {
		req := map[string]any{
			"limit":        min(s.cfg.PageSize, limit-len(out)),
			"with_payload": true,
			"with_vector":  true,
		}
		if qFilter != nil {
			req["filter"] = qFilter
		}
		if len(offset) > 0 {
			req["offset"] = offset
		}
		var page scrollResult
		if err := s.doJSON(ctx, op, http.MethodPost, "/collections/"+name+"/points/scroll", req, &page); err != nil {
			return nil, err
		}
		for _, p := range page.Points {
			rec, ok := s.toRecord(p)
			if !ok {
				skipped++
				continue
			}
			out = append(out, rec)
			if len(out) >= limit {
				break
			}
		}
		if len(page.Points) == 0 || isNullJSON(page.NextPageOffset) {
			break
		}
		offset = page.NextPageOffset
	}
	if skipped > 0 {
		s.log.Warn("Skipped qdrant points without usable vectors", "collection", name, "skipped", skipped)
	}
	return out, nil
}

func (s *RecordStore) toRecord(p scrollPoint) (domain.ArticleRecord, bool) {
	vec := decodeVector(p.Vector)
	if len(vec) == 0 || (s.cfg.VectorDim > 0 && len(vec) != s.cfg.VectorDim) {
		return domain.ArticleRecord{}, false
	}
	payload := p.Payload
	rec := domain.ArticleRecord{
		ID:          payloadString(payload, "id", "article_id", "deepsearchId"),
		Vector:      vec,
		Headline:    payloadString(payload, "headline", "title"),
		Summary:     payloadString(payload, "summary"),
		Publisher:   payloadString(payload, "publisher", "source"),
		PublishedAt: parseTime(payloadString(payload, "publishedAt", "published_at", "date")),
		SourceURL:   payloadString(payload, "sourceUrl", "url", "content_url", "contentUrl", "link"),
		Metadata:    map[string]string{},
	}
	if rec.ID == "" {
		rec.ID = decodePointID(p.ID)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewSHA1(recordIDNamespace, []byte(rec.Headline+"|"+rec.SourceURL)).String()
	}
	for k, v := range payload {
		if str, ok := v.(string); ok {
			rec.Metadata[k] = str
		}
	}
	return rec, true
}

func (s *RecordStore) authorize(req *http.Request) {
	if key := strings.TrimSpace(s.cfg.APIKey); key != "" {
		req.Header.Set("api-key", key)
	}
}

func (s *RecordStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return &OperationError{Code: OperationErrorNotFound, Operation: op, StatusCode: resp.StatusCode, Message: truncateBody(raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: statusErr}
	}
	if out == nil || isNullJSON(envelope.Result) {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	if isNullJSON(raw) {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", strings.TrimSpace(string(raw)))
}

// decodeVector accepts an unnamed vector or a map of named vectors (first name wins).
func decodeVector(raw json.RawMessage) []float32 {
	if isNullJSON(raw) {
		return nil
	}
	var plain []float32
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	var named map[string][]float32
	if err := json.Unmarshal(raw, &named); err != nil || len(named) == 0 {
		return nil
	}
	names := make([]string, 0, len(named))
	for k := range named {
		names = append(names, k)
	}
	sort.Strings(names)
	return named[names[0]]
}

func decodePointID(raw json.RawMessage) string {
	if isNullJSON(raw) {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return strings.TrimSpace(string(raw))
}

func payloadString(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := payload[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(raw string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func isNullJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
