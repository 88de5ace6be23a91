package ws

import "sync"

// Registry, her kullanıcının canlı bağlantılarını takip eder.
//
// Bir kullanıcı birden fazla cihaz/tab ile bağlı olabilir; presence
// bu set'in boş olup olmamasından türetilir. Tek bir RWMutex iki map'i
// birlikte korur, böylece aynı kullanıcı için eşzamanlı register/unregister
// set'i bozamaz ve 0→1 / 1→0 geçişi tam bir kez raporlanır.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{} // userID → connID set
	byConn map[string]string              // connID → userID
}

// NewRegistry, boş bir registry oluşturur.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]struct{}),
		byConn: make(map[string]string),
	}
}

// Register, bağlantıyı kullanıcıya ekler. Aynı connID ikinci kez
// verilirse hiçbir şey değişmez.
//
// first: kullanıcının set'i bu çağrıyla 0'dan 1'e çıktıysa true.
func (r *Registry) Register(userID, connID string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[connID]; exists {
		return false
	}

	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[userID] = conns
	}
	conns[connID] = struct{}{}
	r.byConn[connID] = userID

	return len(conns) == 1
}

// Unregister, bağlantıyı siler. Bilinmeyen connID için ("", false) döner.
//
// last: kullanıcının set'i bu çağrıyla 1'den 0'a indiyse true.
func (r *Registry) Unregister(connID string) (userID string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)

	conns := r.byUser[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, userID)
		return userID, true
	}
	return userID, false
}

// ConnectionsFor, kullanıcının bağlantılarının kopyasını döner.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// IsOnline, kullanıcının en az bir bağlantısı varsa true.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// HasConnection, connID hala kayıtlı ve userID'ye aitse true.
func (r *Registry) HasConnection(userID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[connID] == userID && userID != ""
}

// UserOf, bağlantının sahibini döner.
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connID]
	return userID, ok
}

// OnlineUserIDs, en az bir bağlantısı olan kullanıcılar.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	return ids
}

// ConnectionCount, toplam canlı bağlantı sayısı.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
