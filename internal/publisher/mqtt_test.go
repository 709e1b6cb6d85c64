package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/energyguard/internal/config"
	"github.com/hed1ad/energyguard/pkg/models"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	connected    bool
	token        *fakeToken
	messages     []published
	disconnected bool
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload any) mqtt.Token {
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true; c.connected = false }

func testRun() (*models.Run, models.Evaluation, []models.Recommendation) {
	run := &models.Run{
		ID:            "run-1",
		DatasetID:     4,
		Requested:     "reconstruction",
		Algorithm:     "density",
		Fallback:      true,
		Contamination: 0.1,
		Points:        make([]models.ScoredPoint, 20),
		Anomalies:     []models.Anomaly{{Score: 0.4}, {Score: 0.9}},
		StartedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Duration:      1500 * time.Millisecond,
	}
	eval := models.Evaluation{Accuracy: models.Float(0.9)}
	recs := []models.Recommendation{
		{Text: "a", PotentialSavings: models.Float(0.1)},
		{Text: "b", PotentialSavings: models.Float(0.05)},
		{Text: "c"},
	}
	return run, eval, recs
}

func TestNewSummary(t *testing.T) {
	s := NewSummary(testRun())
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 20, s.Points)
	assert.Equal(t, 2, s.Anomalies)
	assert.Equal(t, 0.9, s.MaxScore)
	assert.True(t, s.Fallback)
	assert.Equal(t, []string{"a", "b", "c"}, s.Recommendations)
	assert.InDelta(t, 0.15, s.Savings, 1e-12)
	assert.Equal(t, int64(1500), s.DurationMS)
	assert.Nil(t, s.F1)
}

func TestPublishRun(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes json to the dataset topic", func(t *testing.T) {
		client := &fakeClient{connected: true, token: newToken(nil, true)}
		p := NewWithClient(client, "", nil)

		require.NoError(t, p.PublishRun(ctx, NewSummary(testRun())))
		require.Len(t, client.messages, 1)

		msg := client.messages[0]
		assert.Equal(t, "energyguard/4/run", msg.topic)
		assert.Equal(t, byte(1), msg.qos)

		var got map[string]any
		require.NoError(t, json.Unmarshal(msg.payload, &got))
		assert.Equal(t, "density", got["algorithm"])
		assert.Equal(t, "reconstruction", got["requested_algorithm"])
		assert.Equal(t, 2.0, got["anomalies"])
	})

	t.Run("logs scoped to the publisher", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		p := NewWithClient(&fakeClient{connected: true, token: newToken(nil, true)}, "", log)

		require.NoError(t, p.PublishRun(ctx, NewSummary(testRun())))
		assert.Contains(t, buf.String(), "module=publisher")
		assert.Contains(t, buf.String(), "run_id=run-1")
	})

	t.Run("custom prefix", func(t *testing.T) {
		p := NewWithClient(&fakeClient{}, "site/a", nil)
		assert.Equal(t, "site/a/9/run", p.Topic(9))
	})

	t.Run("not connected", func(t *testing.T) {
		p := NewWithClient(&fakeClient{}, "", nil)
		assert.ErrorIs(t, p.PublishRun(ctx, Summary{}), ErrNotConnected)
	})

	t.Run("broker error", func(t *testing.T) {
		boom := errors.New("not authorized")
		p := NewWithClient(&fakeClient{connected: true, token: newToken(boom, true)}, "", nil)
		assert.ErrorIs(t, p.PublishRun(ctx, Summary{}), boom)
	})

	t.Run("context cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		p := NewWithClient(&fakeClient{connected: true, token: newToken(nil, false)}, "", nil)
		assert.ErrorIs(t, p.PublishRun(cctx, Summary{}), context.Canceled)
	})
}

func TestClose(t *testing.T) {
	client := &fakeClient{connected: true}
	NewWithClient(client, "", nil).Close()
	assert.True(t, client.disconnected)
}

func TestNewRequiresBroker(t *testing.T) {
	_, err := New(config.MQTTConfig{Enabled: true}, nil)
	assert.Error(t, err)
}
