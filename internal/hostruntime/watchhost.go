package hostruntime

import (
	"encoding/json"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/funee-dev/funee/internal/core"
	"github.com/funee-dev/funee/internal/hostexports"
)

// watchSession is one host://watch subscription: a bundle calls
// watchStart to begin, watchFile/watchDirectory to add paths, and
// watchPoll to drain events accumulated since the last poll — a
// synchronous, pull-based shape, since the embedded runtime has no
// notion of delivering an async event to JS outside of host://time's
// callback mechanism.
type watchSession struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending []string
	stopped bool
}

type watchRegistry struct {
	mu       sync.Mutex
	sessions map[int]*watchSession
	nextID   int
}

// registerWatch binds host://watch's five exports: fsnotify on the Go
// side, pull-based polling on the JS side. Poll results cross the
// boundary as a JSON array of changed paths.
func (b *Backend) registerWatch(rt core.JSRuntime, state *core.RunState, el *loop) error {
	reg := &watchRegistry{sessions: make(map[int]*watchSession)}
	state.SetExt("watchSessions", reg)

	fns := map[string]any{
		"__watch_start": func() (int, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return 0, err
			}
			sess := &watchSession{watcher: w}
			reg.mu.Lock()
			reg.nextID++
			id := reg.nextID
			reg.sessions[id] = sess
			reg.mu.Unlock()

			go sess.drain()
			return id, nil
		},
		"__watch_file": func(id int, path string) (int, error) {
			return 0, withSession(reg, id, func(s *watchSession) error { return s.watcher.Add(path) })
		},
		"__watch_directory": func(id int, path string) (int, error) {
			return 0, withSession(reg, id, func(s *watchSession) error { return s.watcher.Add(path) })
		},
		"__watch_poll": func(id int) (string, error) {
			reg.mu.Lock()
			sess := reg.sessions[id]
			reg.mu.Unlock()
			if sess == nil {
				return "[]", nil
			}
			sess.mu.Lock()
			out := sess.pending
			sess.pending = nil
			sess.mu.Unlock()
			if out == nil {
				return "[]", nil
			}
			data, err := json.Marshal(out)
			return string(data), err
		},
		"__watch_stop": func(id int) (int, error) {
			reg.mu.Lock()
			sess := reg.sessions[id]
			delete(reg.sessions, id)
			reg.mu.Unlock()
			if sess == nil {
				return 0, nil
			}
			sess.mu.Lock()
			sess.stopped = true
			sess.mu.Unlock()
			return 0, sess.watcher.Close()
		},
	}
	for name, fn := range fns {
		if err := rt.RegisterFunc(name, fn); err != nil {
			return err
		}
	}

	g := func(export string) string {
		return "globalThis." + hostexports.GlobalBindingName("host://watch", export)
	}
	js := g("watchStart") + ` = __watch_start;
` + g("watchPoll") + ` = function(id) { return JSON.parse(__watch_poll(id)); };
` + g("watchStop") + ` = function(id) { __watch_stop(id); };
` + g("watchFile") + ` = function(id, path) { __watch_file(id, path); };
` + g("watchDirectory") + ` = function(id, path) { __watch_directory(id, path); };
`
	return rt.Eval(js)
}

func withSession(reg *watchRegistry, id int, fn func(*watchSession) error) error {
	reg.mu.Lock()
	sess := reg.sessions[id]
	reg.mu.Unlock()
	if sess == nil {
		return nil
	}
	return fn(sess)
}

func (s *watchSession) drain() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.mu.Lock()
			if !s.stopped {
				s.pending = append(s.pending, ev.Name)
			}
			s.mu.Unlock()
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
