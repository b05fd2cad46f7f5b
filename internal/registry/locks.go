package registry

import "sync"

// Антиспам сети чувствителен к параллельным всплескам с одного аккаунта,
// поэтому пачки одной сессии выполняются строго по очереди: воркер,
// получивший вторую пачку той же сессии, ждёт освобождения замка.

// LockSession захватывает замок сессии, блокируясь до его освобождения.
func (r *Registry) LockSession(sessionID int) {
	r.sessionLock(sessionID).Lock()
}

// UnlockSession освобождает замок сессии.
func (r *Registry) UnlockSession(sessionID int) {
	r.sessionLock(sessionID).Unlock()
}

func (r *Registry) sessionLock(sessionID int) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	lock, ok := r.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[sessionID] = lock
	}
	return lock
}
