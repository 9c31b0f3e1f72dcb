package feed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/avvvet/gatepass-services/internal/comm"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

type client struct {
	mu   sync.Mutex // gorilla connections allow one concurrent writer
	conn *websocket.Conn
}

func (c *client) write(msg *comm.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// Hub pushes gate events to the security consoles connected over websocket.
type Hub struct {
	upgrader   websocket.Upgrader
	connMap    sync.Map // socketId -> *client
	instanceId string
}

func NewHub(instanceId string, checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		instanceId: instanceId,
	}
}

// ServeWS upgrades the request and keeps the socket registered until the
// console goes away. Consoles only listen; anything they send is dropped.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	socketId := uuid.New().String()
	h.connMap.Store(socketId, &client{conn: conn})
	log.Infof("New WebSocket connection established: %s", socketId)

	go h.readLoop(socketId, conn)
}

func (h *Hub) readLoop(socketId string, conn *websocket.Conn) {
	defer func() {
		h.connMap.Delete(socketId)
		conn.Close()
		log.Infof("Closing WebSocket connection: %s", socketId)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Errorf("WebSocket unexpected close error for socket %s: %v", socketId, err)
			}
			return
		}
	}
}

// Broadcast writes msg to every connected console. Sockets that fail the
// write are dropped.
func (h *Hub) Broadcast(msg *comm.Message) {
	h.connMap.Range(func(key, value interface{}) bool {
		c := value.(*client)
		if err := c.write(msg); err != nil {
			log.Warnf("dropping socket %s: %v", key, err)
			h.connMap.Delete(key)
			c.conn.Close()
		}
		return true
	})
}

// Publish broadcasts the event to local consoles. It stands in for the NATS
// broker when the service runs without one.
func (h *Hub) Publish(_ context.Context, eventType string, data interface{}) error {
	msg, err := comm.NewMessage(eventType, data, h.instanceId)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// Count reports the number of connected consoles.
func (h *Hub) Count() int {
	n := 0
	h.connMap.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
