package topic_build

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/newsquiz-backend/internal/data/repos"
	"github.com/yungbote/newsquiz-backend/internal/data/repos/testutil"
	"github.com/yungbote/newsquiz-backend/internal/domain"
	"github.com/yungbote/newsquiz-backend/internal/modules/course"
	"github.com/yungbote/newsquiz-backend/internal/modules/curation"
	"github.com/yungbote/newsquiz-backend/internal/modules/quiz"
	"github.com/yungbote/newsquiz-backend/internal/pkg/dbctx"
	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
)

type fakeStore struct {
	records     []domain.ArticleRecord
	collections []domain.CollectionRef
	gotRef      domain.CollectionRef
	gotFilter   map[string]any
}

func (s *fakeStore) ListCollections(context.Context, string) ([]domain.CollectionRef, error) {
	return s.collections, nil
}

func (s *fakeStore) DefaultCollection(topic string) domain.CollectionRef {
	return domain.CollectionRef{Name: topic + "_news", Topic: topic}
}

func (s *fakeStore) GetRecordsFiltered(_ context.Context, ref domain.CollectionRef, limit int, filter map[string]any) ([]domain.ArticleRecord, error) {
	s.gotRef, s.gotFilter = ref, filter
	if limit < len(s.records) {
		return s.records[:limit], nil
	}
	return s.records, nil
}

var countRe = regexp.MustCompile(`Write (\d+)`)

// scriptedModel answers every prompt kind the pipeline sends and records the
// prompts it saw. With shortInference set, a first Inference multiple-choice
// request yields only two items.
type scriptedModel struct {
	mu             sync.Mutex
	calls          int
	prompts        []string
	shortInference bool
}

func (m *scriptedModel) Complete(_ context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, req.Prompt)
	m.mu.Unlock()
	n := 0
	if mm := countRe.FindStringSubmatch(req.Prompt); mm != nil {
		n, _ = strconv.Atoi(mm[1])
	}
	inference := strings.Contains(req.Prompt, "inference (I)")
	var items []map[string]any
	switch {
	case strings.Contains(req.Prompt, "reading passage"):
		for i := 0; i < n; i++ {
			items = append(items, map[string]any{"summary": fmt.Sprintf("passage %d", i), "keywords": []string{"actor", "object"}})
		}
	case strings.Contains(req.Prompt, "reflection question"):
		for i := 0; i < n; i++ {
			items = append(items, map[string]any{"question": fmt.Sprintf("why %d", i)})
		}
	case strings.Contains(req.Prompt, "multiple-choice"):
		prefix := "mc"
		if inference {
			prefix = "imc"
			if m.shortInference && n == 5 {
				n = 2
			}
		}
		for i := 0; i < n; i++ {
			items = append(items, map[string]any{
				"question": fmt.Sprintf("%s %d", prefix, i),
				"answers": []map[string]any{
					{"text": "right", "isCorrect": true},
					{"text": "w1", "isCorrect": false},
					{"text": "w2", "isCorrect": false},
					{"text": "w3", "isCorrect": false},
				},
			})
		}
	case strings.Contains(req.Prompt, "O/X"):
		for i := 0; i < n; i++ {
			items = append(items, map[string]any{"question": fmt.Sprintf("ox %d", i), "answer": "X", "explanation": "stated"})
		}
	case strings.Contains(req.Prompt, "short-answer"):
		for i := 0; i < n; i++ {
			items = append(items, map[string]any{"question": fmt.Sprintf("sa %d", i), "answer": "Seoul", "explanation": "stated"})
		}
	case strings.Contains(req.Prompt, "Name the course"):
		return `{"courseName":"Course","courseDescription":"d","subTopic":"finance","subTags":"a, b"}`, nil
	case strings.Contains(req.Prompt, "worthwhile study topic"):
		return `{"results":[]}`, nil
	default:
		return "", fmt.Errorf("unexpected prompt")
	}
	b, _ := json.Marshal(map[string]any{"items": items})
	return string(b), nil
}

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = []float32{1, 1}
	}
	return out, nil
}

func twoGroups(perGroup int) []domain.ArticleRecord {
	var out []domain.ArticleRecord
	for i := 0; i < perGroup; i++ {
		for g := 0; g < 2; g++ {
			vec := []float32{0, 0, 0}
			vec[g] = 10
			out = append(out, domain.ArticleRecord{
				ID:        fmt.Sprintf("g%d-%d", g, i),
				Vector:    vec,
				Headline:  fmt.Sprintf("headline %d/%d", g, i),
				Summary:   fmt.Sprintf("summary %d/%d", g, i),
				Publisher: "KBS",
			})
		}
	}
	return out
}

func newTestPipeline(t *testing.T, store ArticleStore, withDB bool) (*Pipeline, *scriptedModel, Deps) {
	t.Helper()
	log := testutil.Logger(t)
	model := &scriptedModel{}
	emb := constEmbedder{}
	deps := Deps{
		Store:  store,
		Engine: curation.NewClusterEngine(log, curation.DefaultEngineConfig()),
		Noise:  curation.NewNoiseFilter(log, nil, 0),
		Orchestrator: quiz.NewOrchestrator(log,
			quiz.NewItemGenerator(log, model, ""),
			quiz.NewSemanticValidator(log, emb, quiz.ValidatorConfig{}),
			quiz.DefaultTierSpecs()),
		Balancer: quiz.NewAnswerBalancer(rand.New(rand.NewSource(9))),
		Metadata: course.NewMetadataWriter(log, model, "", "", nil),
		Refiner:  course.NewRefiner(log, model, "", 0),
		Embedder: emb,
	}
	if withDB {
		db := testutil.DB(t)
		r := repos.New(db, log)
		deps.DB = db
		deps.Repos = &r
	}
	cfg := DefaultConfig()
	cfg.K = 2
	cfg.Publishers = []string{"KBS", " "}
	return New(log, cfg, deps), model, deps
}

func TestRunBuildsAndPersistsCourses(t *testing.T) {
	store := &fakeStore{records: twoGroups(5), collections: []domain.CollectionRef{{Name: "economy_news_v2", Topic: "economy"}}}
	p, _, deps := newTestPipeline(t, store, true)
	runID := uuid.New()

	res, err := p.Run(context.Background(), runID, "economy")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusSucceeded || res.Courses != 2 || res.Publishable != 2 || res.PartialBatches != 0 {
		t.Fatalf("result: %+v", res)
	}
	if store.gotRef.Name != "economy_news_v2" {
		t.Fatalf("collection: want first listed got=%s", store.gotRef.Name)
	}
	in, _ := store.gotFilter["publisher"].(map[string]any)
	if got, _ := in["$in"].([]string); len(got) != 1 || got[0] != "KBS" {
		t.Fatalf("publisher filter: %v", store.gotFilter)
	}

	pkg := res.Packages[0]
	if len(pkg.Sessions) != 5 || pkg.CourseName != "Course" {
		t.Fatalf("package: sessions=%d name=%q", len(pkg.Sessions), pkg.CourseName)
	}
	s := pkg.Sessions[0]
	if len(s.Quizzes) != 2 || s.Quizzes[0].Level != domain.TierBasic {
		t.Fatalf("levels: %+v", s.Quizzes)
	}
	counts := map[string]int{}
	for _, lvl := range s.Quizzes {
		for _, st := range lvl.Steps {
			if st.ContentType != domain.ContentMultipleChoice {
				continue
			}
			for _, it := range st.Contents {
				counts[it.Answer.Label]++
				if txt, _ := it.CorrectText(); txt != "right" {
					t.Fatalf("balancing moved the wrong text: %q", txt)
				}
			}
		}
	}
	for _, l := range domain.OptionLabels {
		if counts[l] < 2 || counts[l] > 3 {
			t.Fatalf("session answer labels not balanced: %v", counts)
		}
	}

	dbc := dbctx.New(context.Background())
	stored, err := deps.Repos.CoursePackages.ListByTopic(dbc, "economy", true)
	if err != nil || len(stored) != 2 {
		t.Fatalf("stored packages: n=%d err=%v", len(stored), err)
	}
	byStatus, err := deps.Repos.GenerationRuns.CountByStatus(dbc, runID)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if byStatus["complete"] != 2*5*7 {
		t.Fatalf("generation rows: %v", byStatus)
	}
}

func (m *scriptedModel) promptsWith(parts ...string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.prompts {
		ok := true
		for _, part := range parts {
			if !strings.Contains(p, part) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, p)
		}
	}
	return out
}

func TestRunSessionContentOrderAndReflectionContext(t *testing.T) {
	store := &fakeStore{records: twoGroups(5)}
	p, model, _ := newTestPipeline(t, store, false)
	res, err := p.Run(context.Background(), uuid.New(), "economy")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Courses == 0 {
		t.Fatalf("no courses built: %+v", res)
	}
	s := res.Packages[0].Sessions[0]
	inference := s.Quizzes[1].Steps
	if s.Quizzes[0].Steps[0].ContentType != domain.ContentSummaryReading {
		t.Fatalf("basic first step: want=%s got=%s", domain.ContentSummaryReading, s.Quizzes[0].Steps[0].ContentType)
	}
	if last := inference[len(inference)-1]; last.ContentType != domain.ContentSessionReflection || len(last.Contents) != 1 {
		t.Fatalf("inference last step: want one %s got=%s/%d", domain.ContentSessionReflection, last.ContentType, len(last.Contents))
	}
	reflections := model.promptsWith("reflection question")
	if len(reflections) == 0 {
		t.Fatalf("no reflection prompt sent")
	}
	for _, want := range []string{"imc 0", "sa 0"} {
		if !strings.Contains(reflections[0], want) {
			t.Fatalf("reflection prompt missing session quiz %q:\n%s", want, reflections[0])
		}
	}
	if strings.Contains(reflections[0], "ox 0") {
		t.Fatalf("reflection prompt should only list inference quizzes:\n%s", reflections[0])
	}
}

func TestRunInferenceBackfillSeededWithBasicQuestions(t *testing.T) {
	store := &fakeStore{records: twoGroups(5)}
	p, model, _ := newTestPipeline(t, store, false)
	model.shortInference = true
	res, err := p.Run(context.Background(), uuid.New(), "economy")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PartialBatches != 0 {
		t.Fatalf("partial batches: want=0 got=%d", res.PartialBatches)
	}
	backfills := model.promptsWith("Write 3 multiple-choice", "inference (I)")
	if len(backfills) == 0 {
		t.Fatalf("no inference multiple-choice backfill sent")
	}
	for _, want := range []string{"mc 0", "mc 4", "imc 1"} {
		if !strings.Contains(backfills[0], want) {
			t.Fatalf("backfill prompt missing exemplar %q:\n%s", want, backfills[0])
		}
	}
	firsts := model.promptsWith("Write 5 multiple-choice", "inference (I)")
	if len(firsts) == 0 || strings.Contains(firsts[0], "These questions already exist") {
		t.Fatalf("first inference request should carry no exemplars: n=%d", len(firsts))
	}
}

func TestRunSkipsOnInsufficientData(t *testing.T) {
	store := &fakeStore{records: twoGroups(5)[:3]}
	p, model, _ := newTestPipeline(t, store, false)
	res, err := p.Run(context.Background(), uuid.New(), "world")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusSkipped || res.SkipReason == "" {
		t.Fatalf("result: %+v", res)
	}
	if store.gotRef.Name != "world_news" {
		t.Fatalf("fallback collection: got=%s", store.gotRef.Name)
	}
	if model.calls != 0 {
		t.Fatalf("no generation expected, got %d calls", model.calls)
	}
}

func TestRunSkipsWhenNoClusterIsBigEnough(t *testing.T) {
	store := &fakeStore{records: twoGroups(4)}
	p, _, _ := newTestPipeline(t, store, false)
	res, err := p.Run(context.Background(), uuid.New(), "society")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusSkipped {
		t.Fatalf("status: want skipped got=%s", res.Status)
	}
}

func TestValidDocsDropsMissingSummary(t *testing.T) {
	recs := []domain.ArticleRecord{{ID: "a", Summary: "x"}, {ID: "b", Summary: "  "}, {ID: "c"}}
	if got := validDocs(recs); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("validDocs: %v", got)
	}
	if publisherFilter(nil) != nil {
		t.Fatalf("empty allowlist should not filter")
	}
}
