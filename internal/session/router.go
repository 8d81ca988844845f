package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"spectra-monitor/pkg/db"
	"spectra-monitor/pkg/logger"
	"spectra-monitor/pkg/models"
	"spectra-monitor/pkg/protocol"

	"github.com/google/uuid"
)

// Redis keys and channels used to share realtime state across nodes.
const (
	flagChannel         = "spectra:flags"
	deviceStatusChannel = "spectra:device:updates"
	screenFrameTTL      = 30 * time.Second
)

// Store is the slice of the telemetry store the router needs.
type Store interface {
	UpsertDevice(ctx context.Context, d *models.Device) error
	InsertLog(ctx context.Context, e *models.LogEntry) error
	UpdateDeviceStatus(ctx context.Context, id, status string) (bool, error)
}

// Router dispatches inbound realtime events: device telemetry is persisted
// and fanned out to room members, status and flag changes go to every
// connection. Malformed payloads are logged and dropped; the protocol is
// fire-and-forget so senders never receive an error.
type Router struct {
	hub   *Hub
	store Store
	redis *db.RedisClient // optional; nil disables cross-node republish

	// offlineGrace is how long after its last connection closes a device
	// may stay before being marked offline. Zero disables the transition.
	offlineGrace time.Duration

	// nodeID tags published messages so the cluster listener can tell
	// this node's own publishes apart from its peers'.
	nodeID string

	mu            sync.Mutex
	deviceConns   map[*Conn]string
	liveDevices   map[string]int
	offlineTimers map[string]*time.Timer

	now func() time.Time
}

func NewRouter(hub *Hub, store Store, redis *db.RedisClient, offlineGrace time.Duration) *Router {
	return &Router{
		hub:           hub,
		store:         store,
		redis:         redis,
		offlineGrace:  offlineGrace,
		nodeID:        uuid.NewString(),
		deviceConns:   make(map[*Conn]string),
		liveDevices:   make(map[string]int),
		offlineTimers: make(map[string]*time.Timer),
		now:           time.Now,
	}
}

// clusterMessage wraps an encoded event for the Redis channels so
// receiving nodes can drop their own publishes.
type clusterMessage struct {
	Node    string          `json:"node"`
	Payload json.RawMessage `json:"payload"`
}

// ListenCluster relays flag and device-status events published by other
// nodes into this node's connections. It blocks until ctx is cancelled.
func (r *Router) ListenCluster(ctx context.Context) {
	if r.redis == nil {
		return
	}

	sub := r.redis.Subscribe(ctx, flagChannel, deviceStatusChannel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var cm clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &cm); err != nil {
				logger.Warn("Dropping malformed cluster message", logger.Err(err))
				continue
			}
			if cm.Node == r.nodeID {
				continue
			}
			r.hub.BroadcastAll(cm.Payload)
		}
	}
}

func (r *Router) publish(ctx context.Context, channel string, payload []byte) {
	if r.redis == nil {
		return
	}
	wrapped, err := json.Marshal(clusterMessage{Node: r.nodeID, Payload: payload})
	if err != nil {
		logger.Error("Failed to wrap cluster message", logger.Err(err))
		return
	}
	if err := r.redis.Publish(ctx, channel, wrapped).Err(); err != nil {
		logger.Debug("Failed to publish cluster message",
			logger.String("channel", channel), logger.Err(err))
	}
}

// HandleMessage processes one inbound frame from a connection. Each event is
// handled to completion (store write then broadcast) before the caller reads
// the next frame from that connection.
func (r *Router) HandleMessage(ctx context.Context, c *Conn, raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Warn("Dropping unparseable frame", logger.String("conn_id", c.ID()), logger.Err(err))
		return
	}

	switch env.Event {
	case protocol.EventJoinSession:
		r.handleJoin(c, env)
	case protocol.EventDeviceConnect:
		r.handleDeviceConnect(ctx, c, env)
	case protocol.EventDeviceLog:
		r.handleDeviceLog(ctx, env)
	case protocol.EventScreenFrame:
		r.handleScreenFrame(ctx, env)
	default:
		logger.Warn("Dropping unknown event",
			logger.String("event", env.Event),
			logger.String("conn_id", c.ID()))
	}
}

func (r *Router) handleJoin(c *Conn, env protocol.Envelope) {
	p, err := protocol.DecodeJoin(env.Data)
	if err != nil {
		logger.Warn("Dropping malformed join", logger.Err(err))
		return
	}
	r.hub.Join(c, SessionRoom(p.DeviceID))
	logger.Debug("Connection joined session",
		logger.String("conn_id", c.ID()),
		logger.String("device_id", p.DeviceID))
}

func (r *Router) handleDeviceConnect(ctx context.Context, c *Conn, env protocol.Envelope) {
	d, err := protocol.DecodeDevice(env.Data)
	if err != nil {
		logger.Warn("Dropping malformed device connect", logger.Err(err))
		return
	}

	d.Status = models.StatusOnline
	d.LastSeen = r.now()

	if err := r.store.UpsertDevice(ctx, &d); err != nil {
		logger.Error("Failed to upsert device on connect",
			logger.String("device_id", d.ID), logger.Err(err))
		return
	}

	r.mu.Lock()
	if prev, ok := r.deviceConns[c]; ok && prev != d.ID {
		r.detachDeviceLocked(c, prev)
	}
	if r.deviceConns[c] != d.ID {
		r.deviceConns[c] = d.ID
		r.liveDevices[d.ID]++
	}
	if t, ok := r.offlineTimers[d.ID]; ok {
		t.Stop()
		delete(r.offlineTimers, d.ID)
	}
	r.mu.Unlock()

	r.BroadcastDeviceStatus(ctx, d.ID, models.StatusOnline)
}

func (r *Router) handleDeviceLog(ctx context.Context, env protocol.Envelope) {
	p, err := protocol.DecodeLog(env.Data)
	if err != nil {
		logger.Warn("Dropping malformed device log", logger.Err(err))
		return
	}

	entry := models.LogEntry{
		ID:        uuid.NewString(),
		DeviceID:  p.DeviceID,
		Level:     p.Level,
		Message:   p.Message,
		Tag:       p.Tag,
		Timestamp: p.Timestamp,
		IsAnomaly: models.IsAnomalous(p.Level, p.Message),
		CreatedAt: r.now(),
	}

	// Publish only after the durable write commits: a failed store write
	// drops the event and skips the broadcast (at-most-once delivery).
	if err := r.store.InsertLog(ctx, &entry); err != nil {
		logger.Error("Failed to persist log entry, skipping broadcast",
			logger.String("device_id", p.DeviceID), logger.Err(err))
		return
	}

	msg, err := protocol.Encode(protocol.EventLogNew, entry)
	if err != nil {
		logger.Error("Failed to encode log event", logger.Err(err))
		return
	}
	r.hub.BroadcastRoom(SessionRoom(p.DeviceID), msg)
}

func (r *Router) handleScreenFrame(ctx context.Context, env protocol.Envelope) {
	p, err := protocol.DecodeFrame(env.Data)
	if err != nil {
		logger.Warn("Dropping malformed screen frame", logger.Err(err))
		return
	}

	// Frames are ephemeral: republished to the room, never persisted. The
	// latest frame is cached so a freshly joined viewer can render
	// something before the next frame arrives.
	msg, err := protocol.Encode(protocol.EventScreenOut, p.ImageBase64)
	if err != nil {
		logger.Error("Failed to encode screen frame", logger.Err(err))
		return
	}
	r.hub.BroadcastRoom(SessionRoom(p.DeviceID), msg)

	if r.redis != nil {
		key := "screen:" + p.DeviceID + ":latest"
		if err := r.redis.Set(ctx, key, p.ImageBase64, screenFrameTTL).Err(); err != nil {
			logger.Debug("Failed to cache screen frame", logger.Err(err))
		}
	}
}

// ConnectionClosed tears down a connection: it leaves all rooms immediately,
// and if it was a device's last live session the offline grace timer starts.
func (r *Router) ConnectionClosed(c *Conn) {
	r.hub.Unregister(c)

	r.mu.Lock()
	deviceID, ok := r.deviceConns[c]
	if ok {
		r.detachDeviceLocked(c, deviceID)
	}
	r.mu.Unlock()
}

// detachDeviceLocked must be called with r.mu held.
func (r *Router) detachDeviceLocked(c *Conn, deviceID string) {
	delete(r.deviceConns, c)
	r.liveDevices[deviceID]--
	if r.liveDevices[deviceID] > 0 {
		return
	}
	delete(r.liveDevices, deviceID)

	if r.offlineGrace <= 0 {
		return
	}
	if t, ok := r.offlineTimers[deviceID]; ok {
		t.Stop()
	}
	r.offlineTimers[deviceID] = time.AfterFunc(r.offlineGrace, func() {
		r.markOffline(deviceID)
	})
}

func (r *Router) markOffline(deviceID string) {
	r.mu.Lock()
	delete(r.offlineTimers, deviceID)
	if r.liveDevices[deviceID] > 0 {
		// Reconnected while the timer was firing.
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updated, err := r.store.UpdateDeviceStatus(ctx, deviceID, models.StatusOffline)
	if err != nil {
		logger.Error("Failed to mark device offline",
			logger.String("device_id", deviceID), logger.Err(err))
		return
	}
	if updated {
		r.BroadcastDeviceStatus(ctx, deviceID, models.StatusOffline)
	}
}

// BroadcastDeviceStatus pushes a status-only update to every connection so
// device-list views track liveness without joining every session room.
func (r *Router) BroadcastDeviceStatus(ctx context.Context, deviceID, status string) {
	msg, err := protocol.Encode(protocol.EventDeviceUpdate, protocol.StatusUpdate{ID: deviceID, Status: status})
	if err != nil {
		logger.Error("Failed to encode device update", logger.Err(err))
		return
	}
	r.hub.BroadcastAll(msg)
	r.publish(ctx, deviceStatusChannel, msg)
}

// BroadcastFlag pushes a mutated feature flag to every connection. Flags are
// cross-cutting, so this is a global broadcast rather than room-scoped.
func (r *Router) BroadcastFlag(ctx context.Context, flag *models.FeatureFlag) {
	msg, err := protocol.Encode(protocol.EventFlagUpdated, flag)
	if err != nil {
		logger.Error("Failed to encode flag update", logger.Err(err))
		return
	}
	r.hub.BroadcastAll(msg)
	r.publish(ctx, flagChannel, msg)
}

// Close stops pending offline timers. Connections are torn down by their
// transport goroutines.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.offlineTimers {
		t.Stop()
		delete(r.offlineTimers, id)
	}
}
