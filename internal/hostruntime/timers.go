package hostruntime

import (
	"sync"
	"time"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/hostexports"
)

// timerEntry is one pending setTimeout/setInterval registration. The
// callback itself lives on the JS side, keyed by id in
// globalThis.__timerCallbacks; Go only tracks when to fire it.
type timerEntry struct {
	deadline time.Time
	interval time.Duration // 0 for setTimeout
	cleared  bool
}

// loop is the cooperative micro-loop driving host://time callbacks. Bare
// global setTimeout/etc. calls resolve to the same capability, so both
// sites bind through the same Go state here.
type loop struct {
	mu     sync.Mutex
	timers map[int]*timerEntry
	nextID int
}

func newLoop() *loop {
	return &loop{timers: make(map[int]*timerEntry)}
}

func (l *loop) register(delayMS float64, isInterval bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	d := time.Duration(delayMS) * time.Millisecond
	entry := &timerEntry{deadline: time.Now().Add(d)}
	if isInterval {
		entry.interval = d
	}
	l.timers[id] = entry
	return id
}

func (l *loop) clear(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.timers[id]; ok {
		e.cleared = true
	}
}

func (l *loop) hasPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.timers {
		if !e.cleared {
			return true
		}
	}
	return false
}

// fireDue evaluates the JS callback for every timer whose deadline has
// passed, rescheduling intervals, and returns how many fired.
func (l *loop) fireDue(rt core.JSRuntime) int {
	now := time.Now()
	var due []int
	l.mu.Lock()
	for id, e := range l.timers {
		if e.cleared {
			delete(l.timers, id)
			continue
		}
		if !e.deadline.After(now) {
			due = append(due, id)
		}
	}
	l.mu.Unlock()

	for _, id := range due {
		l.mu.Lock()
		e := l.timers[id]
		if e == nil || e.cleared {
			l.mu.Unlock()
			continue
		}
		if e.interval > 0 {
			e.deadline = now.Add(e.interval)
		} else {
			delete(l.timers, id)
		}
		l.mu.Unlock()

		_ = rt.Eval(fireTimerJS(id))
	}
	return len(due)
}

func fireTimerJS(id int) string {
	return "(function(){ var cb = globalThis.__timerCallbacks && globalThis.__timerCallbacks[" +
		itoa(id) + "]; if (typeof cb === 'function') { cb(); } })();"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// registerTime binds host://time's four exports plus the JS-side shim
// that stores callbacks and calls back into __time_register/__time_clear.
func (b *Backend) registerTime(rt core.JSRuntime, state *core.RunState, el *loop) error {
	registerName := "__time_register"
	clearName := "__time_clear"

	if err := rt.RegisterFunc(registerName, func(delayMS, isInterval int) int {
		return el.register(float64(delayMS), isInterval != 0)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc(clearName, func(id int) { el.clear(id) }); err != nil {
		return err
	}

	setTO := hostexports.GlobalBindingName("host://time", "setTimeout")
	clearTO := hostexports.GlobalBindingName("host://time", "clearTimeout")
	setIV := hostexports.GlobalBindingName("host://time", "setInterval")
	clearIV := hostexports.GlobalBindingName("host://time", "clearInterval")

	js := `
globalThis.__timerCallbacks = globalThis.__timerCallbacks || {};
globalThis.` + setTO + ` = function(cb, delay) {
	var id = ` + registerName + `(Math.floor(delay || 0), 0);
	globalThis.__timerCallbacks[id] = cb;
	return id;
};
globalThis.` + clearTO + ` = function(id) { ` + clearName + `(id); delete globalThis.__timerCallbacks[id]; };
globalThis.` + setIV + ` = function(cb, delay) {
	var id = ` + registerName + `(Math.floor(delay || 0), 1);
	globalThis.__timerCallbacks[id] = cb;
	return id;
};
globalThis.` + clearIV + ` = function(id) { ` + clearName + `(id); delete globalThis.__timerCallbacks[id]; };
`
	return rt.Eval(js)
}
