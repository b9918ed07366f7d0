package app_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wstore "klaro/internal/adapter/weaviate"
	"klaro/internal/app"
	"klaro/internal/config"
	"klaro/internal/testutils"
)

// The full request path: submit over HTTP, task through NSQ, pipeline run by
// the consumer, progress served over the NDJSON stream.
func TestApp_EndToEnd_Adaptation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E integration test")
	}

	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	cfg := s.GetAppConfig()
	cfg.StreamPollMillis = 100

	vecStore := wstore.NewStore(s.Weaviate)
	require.NoError(t, vecStore.EnsureSchema(context.Background()))

	application, err := app.New(cfg, s.DB, vecStore, s.NSQ, stubEmbedder{}, stubCompleter{})
	require.NoError(t, err)

	// Worker side
	nsqConsumer, err := nsq.NewConsumer(config.TopicAdaptTask, config.ChannelWorker, nsq.NewConfig())
	require.NoError(t, err)
	nsqConsumer.AddHandler(application.Consumer)
	require.NoError(t, nsqConsumer.ConnectToNSQD(cfg.NSQDHost))
	defer nsqConsumer.Stop()

	srv := httptest.NewServer(application.Handler)
	defer srv.Close()

	// 1. Submit
	resp, err := http.Post(srv.URL+"/adapt", "application/json",
		strings.NewReader(`{"content":"One paragraph.\n\nAnother paragraph.","profile":{"attention":2},"max_chunk_size":20}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))

	var submitted map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	resp.Body.Close()
	jobID := submitted["job_id"]
	require.NotEmpty(t, jobID)

	// 2. Follow the stream to the terminal snapshot
	streamResp, err := http.Get(srv.URL + "/adapt/" + jobID + "/stream")
	require.NoError(t, err)
	defer streamResp.Body.Close()

	type snapshot struct {
		TotalChunks     int               `json:"total_chunks"`
		ProcessedChunks int               `json:"processed_chunks"`
		Chunks          map[string]string `json:"simplified_chunks"`
		Completed       bool              `json:"completed"`
		Error           string            `json:"error"`
	}

	var last snapshot
	scanner := bufio.NewScanner(streamResp.Body)
	deadline := time.After(30 * time.Second)
	done := make(chan struct{})
	go func() {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.Contains(line, "not_found") {
				continue
			}
			if json.Unmarshal([]byte(line), &last) == nil && (last.Completed || last.Error != "") {
				break
			}
		}
		close(done)
	}()
	select {
	case <-done:
	case <-deadline:
		t.Fatal("timed out waiting for terminal snapshot")
	}

	require.True(t, last.Completed, "job should complete: %s", last.Error)
	assert.Equal(t, 2, last.TotalChunks)
	assert.Equal(t, 2, last.ProcessedChunks)
	assert.Equal(t, "adapted", last.Chunks["0"])

	// 3. One-shot snapshot agrees
	getResp, err := http.Get(srv.URL + "/adapt/" + jobID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)

	// 4. Rate-limit check endpoint reflects the consumed submission
	limitsResp, err := http.Get(srv.URL + "/limits")
	require.NoError(t, err)
	defer limitsResp.Body.Close()
	assert.Equal(t, http.StatusOK, limitsResp.StatusCode)
}

func TestApp_EndToEnd_Videos(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E integration test")
	}

	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	cfg := s.GetAppConfig()

	vecStore := wstore.NewStore(s.Weaviate)
	require.NoError(t, vecStore.EnsureSchema(context.Background()))

	application, err := app.New(cfg, s.DB, vecStore, s.NSQ, stubEmbedder{}, stubCompleter{})
	require.NoError(t, err)

	srv := httptest.NewServer(application.Handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/videos", "application/json",
		strings.NewReader(`{"title":"Photosynthesis","url":"https://example.com/v/1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Weaviate indexes asynchronously enough that an immediate query can miss.
	require.Eventually(t, func() bool {
		recResp, err := http.Post(srv.URL+"/videos/recommendations", "application/json",
			strings.NewReader(`{"content":"how plants make food"}`))
		if err != nil {
			return false
		}
		defer recResp.Body.Close()

		var out struct {
			Videos []struct {
				Title string `json:"title"`
			} `json:"videos"`
			Success bool `json:"success"`
		}
		if json.NewDecoder(recResp.Body).Decode(&out) != nil {
			return false
		}
		return out.Success && len(out.Videos) == 1 && out.Videos[0].Title == "Photosynthesis"
	}, 15*time.Second, 500*time.Millisecond)

	// Stats sees the indexed video
	statsResp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer statsResp.Body.Close()
	assert.Equal(t, http.StatusOK, statsResp.StatusCode)
}
