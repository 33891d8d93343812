package llmadvisor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"permgate/internal/decision"
)

type fakeHTTPClient struct {
	statusCode int
	body       string
	err        error
	lastReq    *http.Request
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.statusCode,
		Body:       io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

func responseWithAdvice(advice string) string {
	b, _ := json.Marshal(anthropicResponse{Content: []anthropicContentBlock{{Type: "text", Text: advice}}})
	return string(b)
}

func newTestProvider(t *testing.T, client HTTPClient) *Provider {
	t.Helper()
	p, err := NewProvider(Config{APIKey: "test-key", Model: "claude-test"})
	require.NoError(t, err)
	p.client = client
	return p
}

func TestAdvise_ValidVerdict(t *testing.T) {
	client := &fakeHTTPClient{statusCode: 200, body: responseWithAdvice(`{"verdict":"allow","confidence":0.8,"reason":"benign read"}`)}
	p := newTestProvider(t, client)

	resp, err := p.Advise(context.Background(), AdviceRequest{ToolName: "Read", Role: "coder"})
	require.NoError(t, err)
	require.Equal(t, decision.Allow, resp.Verdict)
	require.Equal(t, 0.8, resp.Confidence)
	require.True(t, p.IsHealthy())
}

func TestAdvise_InvalidVerdictErrors(t *testing.T) {
	client := &fakeHTTPClient{statusCode: 200, body: responseWithAdvice(`{"verdict":"maybe","confidence":0.5}`)}
	p := newTestProvider(t, client)

	_, err := p.Advise(context.Background(), AdviceRequest{ToolName: "Bash"})
	require.Error(t, err)
}

func TestAdvise_NonOKStatusMarksUnhealthyOnServerError(t *testing.T) {
	client := &fakeHTTPClient{statusCode: 503, body: `{"error":"overloaded"}`}
	p := newTestProvider(t, client)

	_, err := p.Advise(context.Background(), AdviceRequest{ToolName: "Bash"})
	require.Error(t, err)
	require.False(t, p.IsHealthy())
}

func TestAdvise_ClientErrorMarksUnhealthy(t *testing.T) {
	client := &fakeHTTPClient{err: context.DeadlineExceeded}
	p := newTestProvider(t, client)

	_, err := p.Advise(context.Background(), AdviceRequest{ToolName: "Bash"})
	require.Error(t, err)
	require.False(t, p.IsHealthy())
}

func TestAdvise_SendsAuthHeaders(t *testing.T) {
	client := &fakeHTTPClient{statusCode: 200, body: responseWithAdvice(`{"verdict":"deny","confidence":0.9,"reason":"destructive"}`)}
	p := newTestProvider(t, client)

	_, err := p.Advise(context.Background(), AdviceRequest{ToolName: "Bash", ToolInput: "rm -rf /"})
	require.NoError(t, err)
	require.Equal(t, "test-key", client.lastReq.Header.Get("x-api-key"))
	require.NotEmpty(t, client.lastReq.Header.Get("anthropic-version"))
}

func TestNewProvider_RequiresAPIKeyAndModel(t *testing.T) {
	_, err := NewProvider(Config{Model: "x"})
	require.Error(t, err)
	_, err = NewProvider(Config{APIKey: "x"})
	require.Error(t, err)
}
