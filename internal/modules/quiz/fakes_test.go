package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
)

type gatewayReply struct {
	body string
	err  error
}

type fakeGateway struct {
	mu       sync.Mutex
	replies  []gatewayReply
	requests []llm.Request
}

func (g *fakeGateway) Complete(_ context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.replies) == 0 {
		return "", &llm.TransportError{Provider: "fake", Err: fmt.Errorf("no scripted reply")}
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r.body, r.err
}

type vectorEmbedder struct {
	byText   map[string][]float32
	fallback []float32
	err      error
	calls    int
}

func (e *vectorEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		if v, ok := e.byText[in]; ok {
			out[i] = v
		} else {
			out[i] = e.fallback
		}
	}
	return out, nil
}

var (
	onTopic  = []float32{1, 0, 0}
	offTopic = []float32{0, 1, 0}
)

type mcSpec struct {
	question string
	correct  string
}

// mcJSON renders multiple-choice items the way the model is asked to.
func mcJSON(items ...mcSpec) string {
	type ans struct {
		Text        string `json:"text"`
		IsCorrect   bool   `json:"isCorrect"`
		Explanation string `json:"explanation"`
	}
	type item struct {
		Question string `json:"question"`
		Answers  []ans  `json:"answers"`
	}
	out := struct {
		Items []item `json:"items"`
	}{}
	for _, it := range items {
		out.Items = append(out.Items, item{
			Question: it.question,
			Answers: []ans{
				{Text: it.correct, IsCorrect: true, Explanation: "because"},
				{Text: it.question + " w1", Explanation: "no"},
				{Text: it.question + " w2", Explanation: "no"},
				{Text: it.question + " w3", Explanation: "no"},
			},
		})
	}
	b, _ := json.Marshal(out)
	return string(b)
}
