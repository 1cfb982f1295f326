package cartsync

import (
	"sync"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// ManualConnectivity сообщает online/offline, переключаемые вызовами SetOnline.
// Слушатели вызываются синхронно и только на смене состояния.
type ManualConnectivity struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]domain.ConnectivityListener
}

// NewManualConnectivity создаёт источник с начальным состоянием.
func NewManualConnectivity(online bool) *ManualConnectivity {
	return &ManualConnectivity{
		online:    online,
		listeners: make(map[int]domain.ConnectivityListener),
	}
}

// Online возвращает текущее состояние.
func (c *ManualConnectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// Subscribe регистрирует слушателя.
func (c *ManualConnectivity) Subscribe(listener domain.ConnectivityListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.listeners, id)
		})
	}
}

// SetOnline меняет состояние и оповещает слушателей, если оно действительно изменилось.
func (c *ManualConnectivity) SetOnline(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online
	listeners := make([]domain.ConnectivityListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		if online {
			l.OnOnline()
		} else {
			l.OnOffline()
		}
	}
}

// Listeners возвращает число активных подписок.
func (c *ManualConnectivity) Listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

var _ domain.ConnectivitySource = (*ManualConnectivity)(nil)
