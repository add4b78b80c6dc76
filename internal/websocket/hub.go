package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул буферов для сериализации - убирает аллокации на каждом сообщении
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями.
//
// Два режима доставки:
//   - Broadcast: всем подключенным клиентам (обновления стакана, сделки)
//   - SendToUser: только соединениям конкретного пользователя (ход в
//     переговорах, запрос подтверждения количества)
//
// Один пользователь может держать несколько соединений (вкладки,
// устройства) - адресное сообщение уходит во все.
type Hub struct {
	// Все зарегистрированные клиенты
	clients map[*Client]bool

	// Индекс клиентов по пользователю для адресной доставки
	byUser map[string]map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Остановка главного цикла
	stop chan struct{}

	// Счетчик сообщений, отброшенных из-за переполнения каналов
	dropped atomic.Int64

	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub создает новый Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		logger:     logger,
	}
}

// Run запускает главный цикл Hub.
//
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if client.userID != "" {
				if h.byUser[client.userID] == nil {
					h.byUser[client.userID] = make(map[*Client]bool)
				}
				h.byUser[client.userID][client] = true
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client connected",
				zap.String("user_id", client.userID),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClientLocked(client)
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client disconnected",
				zap.String("user_id", client.userID),
				zap.Int("total_clients", total))

		case message := <-h.broadcast:
			// Копируем список клиентов под коротким RLock,
			// отправляем без блокировки
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает читать - отключаем
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					h.removeClientLocked(client)
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Warn("Removed slow clients",
					zap.Int("removed", len(toRemove)),
					zap.Int("total_clients", total))
			}
		}
	}
}

// Stop останавливает главный цикл и закрывает все соединения
func (h *Hub) Stop() {
	close(h.stop)
}

// removeClientLocked удаляет клиента из обоих индексов. Вызывать под mu.Lock
func (h *Hub) removeClientLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if client.userID != "" {
		if set := h.byUser[client.userID]; set != nil {
			delete(set, client)
			if len(set) == 0 {
				delete(h.byUser, client.userID)
			}
		}
	}
	close(client.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.removeClientLocked(client)
	}
}

// encode сериализует сообщение через пул буферов
func encode(message interface{}) ([]byte, error) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		return nil, err
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	return msgCopy, nil
}

// Broadcast отправляет сообщение всем подключенным клиентам.
//
// Не блокирует: при переполнении канала сообщение отбрасывается,
// счетчик dropped растет.
func (h *Hub) Broadcast(messageType string, payload interface{}) {
	data, err := encode(NewEnvelope(messageType, payload))
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}
	h.BroadcastRaw(data)
}

// BroadcastRaw отправляет уже сериализованное сообщение
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
	}
}

// SendToUser отправляет сообщение всем соединениям пользователя.
//
// Возвращает количество соединений, в которые сообщение ушло.
// Ноль означает, что пользователь сейчас не подключен - вызывающий
// может задействовать вторичный канал.
func (h *Hub) SendToUser(userID, messageType string, payload interface{}) int {
	data, err := encode(NewEnvelope(messageType, payload))
	if err != nil {
		h.logger.Error("Failed to marshal user message",
			zap.String("user_id", userID),
			zap.Error(err))
		return 0
	}

	h.mu.RLock()
	set := h.byUser[userID]
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range clients {
		select {
		case client.send <- data:
			delivered++
		default:
			h.dropped.Add(1)
		}
	}
	return delivered
}

// IsUserConnected сообщает, есть ли у пользователя живые соединения
func (h *Hub) IsUserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает счетчик отброшенных сообщений
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}

// NewEnvelope оборачивает полезную нагрузку в стандартный конверт
func NewEnvelope(messageType string, payload interface{}) *Envelope {
	return &Envelope{
		Type:      messageType,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}
}
