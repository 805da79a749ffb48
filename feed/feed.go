// Package feed publishes battle lifecycle notifications to kafka.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/COAOX/timeline_wars/game"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const queueSize = 256

const (
	TypeBattleStarted = "battle_started"
	TypeRoundClosed   = "round_closed"
	TypeBattleEnded   = "battle_ended"
)

var errStopped = errors.New("feed publisher stopped")

type Config struct {
	Brokers []string
	Topic   string
}

// Message is the JSON value written for every notification; the kafka key is the battle id.
type Message struct {
	Type     string            `json:"type"`
	BattleID string            `json:"battle_id"`
	At       time.Time         `json:"at"`
	Round    *game.RoundResult `json:"round,omitempty"`
	Battle   game.Snapshot     `json:"battle"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements game.Observer. Notifications are queued and written by one goroutine,
// so a slow broker never holds up a battle.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
	queue  chan kafka.Message

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Topic == "" {
		return nil, errors.New("feed topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, time.Now), nil
}

func newPublisher(w messageWriter, now func() time.Time) *Publisher {
	return &Publisher{
		writer: w,
		now:    now,
		queue:  make(chan kafka.Message, queueSize),
	}
}

func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run(ctx)
	zap.L().Info("feed publisher started")
}

// Stop drains whatever is queued, then closes the writer.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
	return p.writer.Close()
}

func (p *Publisher) BattleStarted(s game.Snapshot) {
	p.enqueue(Message{Type: TypeBattleStarted, BattleID: s.ID, Battle: s})
}

func (p *Publisher) RoundClosed(s game.Snapshot, r game.RoundResult) {
	p.enqueue(Message{Type: TypeRoundClosed, BattleID: s.ID, Round: &r, Battle: s})
}

func (p *Publisher) BattleEnded(s game.Snapshot) {
	p.enqueue(Message{Type: TypeBattleEnded, BattleID: s.ID, Battle: s})
}

func (p *Publisher) enqueue(m Message) {
	if err := p.Publish(m); err != nil {
		zap.L().Warn("feed message dropped", zap.String("battle_id", m.BattleID), zap.String("type", m.Type), zap.Error(err))
	}
}

// Publish queues m without blocking; a full queue drops the message.
func (p *Publisher) Publish(m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return errStopped
	}
	m.At = p.now()
	v, err := json.Marshal(m)
	if err != nil {
		return err
	}
	select {
	case p.queue <- kafka.Message{Key: []byte(m.BattleID), Value: v}:
		return nil
	default:
		return errors.New("feed queue full")
	}
}

func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case m := <-p.queue:
			p.deliver(ctx, m)
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case m := <-p.queue:
			p.deliver(ctx, m)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, m kafka.Message) {
	if err := p.writer.WriteMessages(ctx, m); err != nil {
		zap.L().Error("feed write failed", zap.ByteString("battle_id", m.Key), zap.Error(err))
	}
}
