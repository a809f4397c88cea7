package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"org-authority-go/internal/config"
	"org-authority-go/internal/model"
	"org-authority-go/pkg/events"
)

type fakeReader struct {
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type countingHandler struct {
	seen []string
	err  error
}

func (h *countingHandler) Handle(_ context.Context, e events.OrgChangeEvent) error {
	h.seen = append(h.seen, e.EventID)
	return h.err
}

func message(t *testing.T, id string) kafka.Message {
	t.Helper()
	body, err := json.Marshal(events.OrgChangeEvent{EventID: id, CompanyID: "acme", EntityType: model.EntityPosition, EntityID: "p1"})
	require.NoError(t, err)
	return kafka.Message{Key: []byte("acme"), Value: body}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestProducerKeysByCompany(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}
	require.NoError(t, p.PublishOrgChange(context.Background(), events.OrgChangeEvent{EventID: "e1", CompanyID: "acme"}))
	require.Len(t, w.msgs, 1)
	require.Equal(t, "acme", string(w.msgs[0].Key))

	var decoded events.OrgChangeEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	require.Equal(t, "e1", decoded.EventID)
}

func TestConsumerCommitsHandledAndMalformedMessages(t *testing.T) {
	_, rdb := newRedis(t)
	r := &fakeReader{queue: []kafka.Message{message(t, "e1"), {Value: []byte("not json")}, message(t, "e2")}}
	h := &countingHandler{}
	c := &Consumer{reader: r, handler: h, rdb: rdb}

	require.NoError(t, c.Run(context.Background()))
	require.Equal(t, []string{"e1", "e2"}, h.seen)
	require.Len(t, r.committed, 3)
	require.True(t, r.closed)
}

func TestConsumerGivesUpAfterRepeatedFailures(t *testing.T) {
	mr, rdb := newRedis(t)
	m := message(t, "e1")
	r := &fakeReader{queue: []kafka.Message{m, m, m}}
	c := &Consumer{reader: r, handler: &countingHandler{err: errors.New("es down")}, rdb: rdb}

	require.NoError(t, c.Run(context.Background()))
	require.Len(t, r.committed, 1, "only the third failure commits the offset")
	got, err := mr.Get(attemptsKey("e1"))
	require.NoError(t, err)
	require.Equal(t, "3", got)
}

func TestConsumerWithoutRedisLeavesFailuresUncommitted(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{message(t, "e1")}}
	c := &Consumer{reader: r, handler: &countingHandler{err: errors.New("es down")}}

	require.NoError(t, c.Run(context.Background()))
	require.Empty(t, r.committed)
}

func TestBrokers(t *testing.T) {
	require.Equal(t, []string{"k1:9092", "k2:9092"}, brokers(config.KafkaConfig{Brokers: "k1:9092, k2:9092,"}))
}
