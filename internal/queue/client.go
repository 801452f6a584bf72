package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/tenantauth/internal/config"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueSignupVerificationEmail(payload EmailPayload) error {
	return c.enqueue(TypeEmailSignupVerification, payload)
}

func (c *Client) EnqueueActivateAccountEmail(payload EmailPayload) error {
	return c.enqueue(TypeEmailActivateAccount, payload)
}

func (c *Client) EnqueueResetPasswordEmail(payload EmailPayload) error {
	return c.enqueue(TypeEmailResetPassword, payload)
}

func (c *Client) enqueue(taskType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.Enqueue(task, asynq.Queue(QueueMail), asynq.MaxRetry(3), asynq.Timeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
