package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hed1ad/energyguard/internal/config"
	"github.com/hed1ad/energyguard/internal/logger"
	"github.com/hed1ad/energyguard/pkg/models"
)

const publishTimeout = 10 * time.Second

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("not connected to MQTT broker")

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher publishes detection run summaries to MQTT
type Publisher struct {
	client      Client
	topicPrefix string
	logger      *slog.Logger
}

// New connects to the configured broker.
func New(cfg config.MQTTConfig, log *slog.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "energyguard"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, fmt.Errorf("connecting to MQTT broker: timed out after %s", publishTimeout)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return NewWithClient(client, cfg.TopicPrefix, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client Client, topicPrefix string, log *slog.Logger) *Publisher {
	if topicPrefix == "" {
		topicPrefix = "energyguard"
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
		logger:      logger.Module(log, "publisher"),
	}
}

// Summary is the JSON payload published for each run.
type Summary struct {
	RunID           string    `json:"run_id"`
	DatasetID       int64     `json:"dataset_id"`
	Algorithm       string    `json:"algorithm"`
	Requested       string    `json:"requested_algorithm"`
	Fallback        bool      `json:"fallback"`
	Contamination   float64   `json:"contamination"`
	Points          int       `json:"points"`
	Anomalies       int       `json:"anomalies"`
	MaxScore        float64   `json:"max_score"`
	Accuracy        *float64  `json:"accuracy"`
	F1              *float64  `json:"f1_score"`
	Recommendations []string  `json:"recommendations"`
	Savings         float64   `json:"potential_savings"`
	StartedAt       time.Time `json:"started_at"`
	DurationMS      int64     `json:"duration_ms"`
}

// NewSummary condenses a finished run.
func NewSummary(run *models.Run, eval models.Evaluation, recs []models.Recommendation) Summary {
	s := Summary{
		RunID:           run.ID,
		DatasetID:       run.DatasetID,
		Algorithm:       run.Algorithm,
		Requested:       run.Requested,
		Fallback:        run.Fallback,
		Contamination:   run.Contamination,
		Points:          len(run.Points),
		Anomalies:       len(run.Anomalies),
		Accuracy:        eval.Accuracy,
		F1:              eval.F1,
		Recommendations: make([]string, 0, len(recs)),
		StartedAt:       run.StartedAt,
		DurationMS:      run.Duration.Milliseconds(),
	}
	for _, a := range run.Anomalies {
		s.MaxScore = max(s.MaxScore, a.Score)
	}
	for _, r := range recs {
		s.Recommendations = append(s.Recommendations, r.Text)
		if r.PotentialSavings != nil {
			s.Savings += *r.PotentialSavings
		}
	}
	return s
}

// Topic returns the topic a dataset's run summaries go to.
func (p *Publisher) Topic(datasetID int64) string {
	return fmt.Sprintf("%s/%d/run", p.topicPrefix, datasetID)
}

// PublishRun publishes a run summary with QoS 1.
func (p *Publisher) PublishRun(ctx context.Context, s Summary) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}

	topic := p.Topic(s.DatasetID)
	token := p.client.Publish(topic, 1, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publishing to %s: %w", topic, ctx.Err())
	case <-time.After(publishTimeout):
		return fmt.Errorf("publishing to %s: timed out after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	p.logger.Debug("published run summary", "topic", topic, "run_id", s.RunID, "bytes", len(payload))
	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
