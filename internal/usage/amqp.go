package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fastlink/internal/metrics"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Event 投递到 RabbitMQ 的访问事件
type Event struct {
	ShortCode string    `json:"short_code"`
	Timestamp time.Time `json:"timestamp"`
}

// DeclareQueue 声明持久化队列
func DeclareQueue(ch *amqp091.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("声明队列 %q 失败: %w", name, err)
	}
	return nil
}

// AMQPPublisher 把访问记录任务发布到 RabbitMQ, 由 AMQPConsumer 在任意实例上执行
type AMQPPublisher struct {
	ch      *amqp091.Channel
	queue   string
	timeout time.Duration
	logger  *zap.SugaredLogger

	mu   sync.Mutex
	jobs sync.WaitGroup
}

// NewAMQPPublisher 创建发布者
func NewAMQPPublisher(ch *amqp091.Channel, queue string, logger *zap.SugaredLogger) *AMQPPublisher {
	return &AMQPPublisher{
		ch:      ch,
		queue:   queue,
		timeout: 2 * time.Second,
		logger:  logger.Named("usage_publisher"),
	}
}

// Dispatch 在后台发布事件, 不阻塞重定向
func (p *AMQPPublisher) Dispatch(code string) {
	p.jobs.Add(1)
	go func() {
		defer p.jobs.Done()
		if err := p.publish(code); err != nil {
			metrics.UsageJobs.WithLabelValues("dropped").Inc()
			p.logger.Errorf("发布短码 %s 的访问事件失败: %v", code, err)
		}
	}()
}

// Wait 等待已提交的发布完成
func (p *AMQPPublisher) Wait() {
	p.jobs.Wait()
}

func (p *AMQPPublisher) publish(code string) error {
	body, err := json.Marshal(Event{ShortCode: code, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         body,
	})
}

// AMQPConsumer 从 RabbitMQ 消费访问事件并交给 Recorder
type AMQPConsumer struct {
	ch       *amqp091.Channel
	queue    string
	recorder Recorder
	timeout  time.Duration
	logger   *zap.SugaredLogger
}

// NewAMQPConsumer 创建消费者
func NewAMQPConsumer(ch *amqp091.Channel, queue string, recorder Recorder, logger *zap.SugaredLogger) *AMQPConsumer {
	return &AMQPConsumer{
		ch:       ch,
		queue:    queue,
		recorder: recorder,
		timeout:  5 * time.Second,
		logger:   logger.Named("usage_consumer"),
	}
}

// Run 持续消费直到 ctx 取消或连接关闭
func (c *AMQPConsumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(100, 0, false); err != nil {
		return fmt.Errorf("设置 QoS 失败: %w", err)
	}
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("注册消费者失败: %w", err)
	}

	c.logger.Infof("开始消费访问事件, 队列: %s", c.queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("队列 %s 的投递通道已关闭", c.queue)
			}
			c.handle(d)
		}
	}
}

// handle 失败的消息不重新入队, 保持至多一次
func (c *AMQPConsumer) handle(d amqp091.Delivery) {
	var event Event
	if err := json.Unmarshal(d.Body, &event); err != nil || event.ShortCode == "" {
		c.logger.Warnf("无法解析访问事件: %s", string(d.Body))
		_ = d.Nack(false, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.recorder.Record(ctx, event.ShortCode); err != nil {
		metrics.UsageJobs.WithLabelValues("failed").Inc()
		c.logger.Errorf("记录短码 %s 访问失败: %v", event.ShortCode, err)
		_ = d.Nack(false, false)
		return
	}
	metrics.UsageJobs.WithLabelValues("recorded").Inc()
	_ = d.Ack(false)
}
