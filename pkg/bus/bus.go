package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// ArtifactsStream is the JetStream stream holding artifact events.
const ArtifactsStream = "BPTOOLS_ARTIFACTS"

// artifactsMaxAge bounds how long unconsumed artifact events are retained.
const artifactsMaxAge = 30 * 24 * time.Hour

// Bus carries artifact events between the FTP drop box and its consumers over NATS JetStream.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New connects to url. The client name shows up in the NATS monitoring endpoints.
func New(url, clientName string, opts ...nats.Option) (*Bus, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats url is required")
	}
	if clientName != "" {
		opts = append([]nats.Option{nats.Name(clientName)}, opts...)
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Bus{conn: nc, js: js}, nil
}

// Close drains pending messages before closing the connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Connected reports whether the connection to the server is up.
func (b *Bus) Connected() bool {
	return b != nil && b.conn.IsConnected()
}

// EnsureStream creates the stream capturing subjects when it does not exist yet.
func (b *Bus) EnsureStream(ctx context.Context, name string, subjects ...string) error {
	if b == nil {
		return errors.New("nil bus")
	}
	if len(subjects) == 0 {
		return errors.New("at least one subject is required")
	}

	_, err := b.js.StreamInfo(name, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("lookup stream %s: %w", name, err)
	}

	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: subjects,
		Storage:  nats.FileStorage,
		MaxAge:   artifactsMaxAge,
	}, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	return nil
}

// PublishEvent publishes an ArtifactEvent using its id as the JetStream message id, so a
// retried publish is stored once.
func (b *Bus) PublishEvent(ctx context.Context, subj string, evt ArtifactEvent) error {
	return b.publish(ctx, subj, evt, nats.MsgId(evt.EventID.String()))
}

func (b *Bus) publish(ctx context.Context, subj string, v any, opts ...nats.PubOpt) error {
	if b == nil {
		return errors.New("nil bus")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = b.js.Publish(subj, data, append(opts, nats.Context(ctx))...)
	return err
}

type subscription struct {
	sub    *nats.Subscription
	mu     sync.Mutex
	closed bool
}

func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sub.Drain()
}

// Subscribe binds a durable consumer to subj. Messages are acked when fn returns nil and
// redelivered otherwise.
func (b *Bus) Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error) {
	if b == nil {
		return nil, errors.New("nil bus")
	}
	if fn == nil {
		return nil, errors.New("nil handler")
	}

	handler := func(msg *nats.Msg) {
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		if err := fn(handlerCtx, msg.Data); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}

	sub, err := b.js.Subscribe(subj, handler, nats.Durable(durable), nats.ManualAck(), nats.AckExplicit(), nats.DeliverAll())
	if err != nil {
		return nil, err
	}

	s := &subscription{sub: sub}

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return s, nil
}
