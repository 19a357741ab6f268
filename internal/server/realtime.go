package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	RealtimeEventMessage   = "message"
	realtimeEventReady     = "ready"
	realtimeEventHeartbeat = "heartbeat"

	defaultRealtimeChannel = "global"
	maxChannelNameLength   = 64
)

// RealtimeMessage is one broadcast frame. Payload is relayed untouched.
type RealtimeMessage struct {
	Channel   string          `json:"channel"`
	EventType string          `json:"-"`
	Payload   json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// RealtimeDispatcher fans messages out to the subscribers of a channel.
// Nothing is stored; a subscriber that cannot keep up misses frames.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a subscriber on channel until ctx ends or cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, channel string) (<-chan RealtimeMessage, func()) {
	channel = normalizeChannel(channel)
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(channel, subscriber)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(channel, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers message to every subscriber with buffer room and reports how many received it.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) int {
	message.Channel = normalizeChannel(message.Channel)
	if message.EventType == "" {
		message.EventType = RealtimeEventMessage
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	delivered := 0
	for _, subscriber := range d.subscribers[message.Channel] {
		select {
		case subscriber.stream <- message:
			delivered++
		default:
		}
	}
	return delivered
}

// SubscriberCount reports the live subscribers on channel.
func (d *RealtimeDispatcher) SubscriberCount(channel string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[normalizeChannel(channel)])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(channel string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[channel]; !ok {
		d.subscribers[channel] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[channel][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(channel string, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[channel]
	if subscribers == nil {
		return
	}
	delete(subscribers, subscriberID)
	if len(subscribers) == 0 {
		delete(d.subscribers, channel)
	}
}

func normalizeChannel(channel string) string {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return defaultRealtimeChannel
	}
	return channel
}

type realtimePublishPayload struct {
	Channel string          `json:"channel" binding:"omitempty,max=64"`
	Data    json.RawMessage `json:"data" binding:"required"`
}

func (h *httpHandler) handleRealtimeStream(c *gin.Context) {
	channel := normalizeChannel(c.Query("channel"))
	if len(channel) > maxChannelNameLength {
		c.JSON(http.StatusBadRequest, validationBody(fieldError{Field: "channel", Message: "Channel must be at most 64 characters"}))
		return
	}

	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), channel)
	defer cleanup()

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.logger.Debug("realtime subscriber connected", zap.String("channel", channel))
	c.SSEvent(realtimeEventReady, gin.H{"channel": channel})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, message)
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": tick.UTC()})
			return true
		}
	})
	h.logger.Debug("realtime subscriber disconnected", zap.String("channel", channel))
}

func (h *httpHandler) handleRealtimePublish(c *gin.Context) {
	var request realtimePublishPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, validationBody(bindingErrors(err)...))
		return
	}
	if string(request.Data) == "null" {
		c.JSON(http.StatusBadRequest, validationBody(fieldError{Field: "data", Message: "Data is required"}))
		return
	}

	delivered := h.realtime.Publish(RealtimeMessage{
		Channel: request.Channel,
		Payload: request.Data,
	})
	c.JSON(http.StatusAccepted, gin.H{"delivered": delivered})
}
