package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/vnyvk2/ChatServiceApp/internal/metrics"
)

// Hub 是进程内的订阅注册表：按房间维护订阅连接集合，按用户维护连接集合。
// 替代外部 broker，投递范围仅限当前进程内存活的连接。
type Hub struct {
	mu    sync.RWMutex
	rooms map[uint]*RoomHub
	users map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[uint]*RoomHub),
		users: make(map[string]map[*Client]bool),
	}
}

// GetRoom 懒加载房间级子 Hub。
func (h *Hub) GetRoom(roomID uint) *RoomHub {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room != nil {
		return room
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	room = h.rooms[roomID]
	if room != nil {
		return room
	}
	room = NewRoomHub(roomID)
	h.rooms[roomID] = room
	go room.run()
	return room
}

// Online 返回房间当前订阅连接数，供 REST 接口复用。
func (h *Hub) Online(roomID uint) int {
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room == nil {
		return 0
	}
	return room.Online()
}

// PublishToRoom 把事件投给房间的全部现存订阅者。
// 没有订阅者或队列已满时直接丢弃：离线端靠历史接口补齐，不做重放。
func (h *Hub) PublishToRoom(roomID uint, evt Event) {
	b, err := json.Marshal(evt)
	if err != nil {
		return
	}
	h.mu.RLock()
	room := h.rooms[roomID]
	h.mu.RUnlock()
	if room == nil {
		return
	}
	select {
	case room.broadcast <- b:
		metrics.BroadcastEventsTotal.WithLabelValues(evt.Type).Inc()
	default:
	}
}

// PublishToUser 只投给该用户的连接（错误通知等点对点事件）。
func (h *Hub) PublishToUser(username string, evt Event) {
	b, err := json.Marshal(evt)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[username] {
		if c.trySend(b) {
			metrics.BroadcastEventsTotal.WithLabelValues(evt.Type).Inc()
		}
	}
}

// UserConnections 返回该用户当前的连接数，用于判断"最后一个连接断开"。
func (h *Hub) UserConnections(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[username])
}

func (h *Hub) bindUser(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.users[c.username]
	if set == nil {
		set = make(map[*Client]bool)
		h.users[c.username] = set
	}
	set[c] = true
}

func (h *Hub) unbindUser(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.users[c.username]
	if set == nil {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.users, c.username)
	}
}

// RoomHub 管理单个房间主题的订阅集合，register/unregister/broadcast
// 都经由 run goroutine 串行处理，广播顺序与写入顺序一致。
type RoomHub struct {
	roomID     uint
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	online     int32
}

func NewRoomHub(roomID uint) *RoomHub {
	return &RoomHub{
		roomID:     roomID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

func (rh *RoomHub) run() {
	for {
		select {
		case c := <-rh.register:
			rh.clients[c] = true
			atomic.StoreInt32(&rh.online, int32(len(rh.clients)))
			metrics.WsConnections.Inc()
		case c := <-rh.unregister:
			if _, ok := rh.clients[c]; ok {
				delete(rh.clients, c)
				c.close()
				atomic.StoreInt32(&rh.online, int32(len(rh.clients)))
				metrics.WsConnections.Dec()
			}
		case msg := <-rh.broadcast:
			for c := range rh.clients {
				if !c.trySend(msg) {
					// 慢消费者直接踢掉，避免拖垮整个房间
					delete(rh.clients, c)
					c.close()
					atomic.StoreInt32(&rh.online, int32(len(rh.clients)))
					metrics.WsConnections.Dec()
				}
			}
		}
	}
}

// Online 返回房间当前在线连接数。
func (rh *RoomHub) Online() int { return int(atomic.LoadInt32(&rh.online)) }
