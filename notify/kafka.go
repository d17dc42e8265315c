package notify

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"github.com/HRV220/plate-detect/models"
)

// EventProducer publishes task completion events to a message broker.
type EventProducer interface {
	PublishCompletion(ctx context.Context, task *models.Task) error
	Close() error
}

type completionEvent struct {
	TaskID  string              `json:"task_id"`
	Status  string              `json:"status"`
	Results []models.FileResult `json:"results,omitempty"`
	Error   string              `json:"error,omitempty"`
}

type kafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaProducer(brokers []string, topic string) (EventProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &kafkaProducer{producer: p, topic: topic}, nil
}

func (p *kafkaProducer) PublishCompletion(ctx context.Context, task *models.Task) error {
	data, err := json.Marshal(completionEvent{
		TaskID:  task.ID,
		Status:  string(task.Status),
		Results: task.Results,
		Error:   task.Error,
	})
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(task.ID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *kafkaProducer) Close() error {
	return p.producer.Close()
}
