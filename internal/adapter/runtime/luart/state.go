// Package luart is the one concrete binding between the session kernel's
// host-neutral runtime.Tracer abstraction and github.com/yuin/gopher-lua.
// No other package in this module imports gopher-lua directly: LState is
// not goroutine-safe, so every touch of it is serialized through the
// owning goroutine exposed here, the same discipline dshills-keystorm's
// internal/plugin/lua.Executor uses.
package luart

import (
	"errors"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// luaCall is one unit of work destined for the owning goroutine.
type luaCall struct {
	fn     func(L *lua.LState) error
	result chan error
}

// executor serializes all LState access through a single goroutine.
type executor struct {
	L     *lua.LState
	queue chan *luaCall
	done  chan struct{}
	once  sync.Once
}

func newExecutor() *executor {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSandboxedLibraries(L)
	return &executor{
		L:     L,
		queue: make(chan *luaCall, 64),
		done:  make(chan struct{}),
	}
}

// openSandboxedLibraries opens the subset of the standard library a
// debuggee program needs without granting filesystem or process access.
// io/os/debug/package are deliberately left unopened.
func openSandboxedLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// run processes queued calls until Close. Must be invoked once, from the
// goroutine that will own the LState for its lifetime.
func (e *executor) run() {
	for {
		select {
		case <-e.done:
			e.drain()
			return
		case call, ok := <-e.queue:
			if !ok {
				return
			}
			call.result <- e.invoke(call.fn)
		}
	}
}

func (e *executor) invoke(fn func(L *lua.LState) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if asErr, ok := r.(error); ok {
				err = asErr
			} else {
				err = errors.New("lua runtime panic")
			}
		}
	}()
	return fn(e.L)
}

func (e *executor) drain() {
	for {
		select {
		case call, ok := <-e.queue:
			if !ok {
				return
			}
			call.result <- errors.New("lua executor closed")
		default:
			return
		}
	}
}

var errExecutorClosed = errors.New("lua executor closed")

// execute runs fn on the owning goroutine and waits for it to finish.
func (e *executor) execute(fn func(L *lua.LState) error) error {
	call := &luaCall{fn: fn, result: make(chan error, 1)}
	select {
	case <-e.done:
		return errExecutorClosed
	case e.queue <- call:
	}
	return <-call.result
}

// close stops the executor's goroutine and releases the LState.
func (e *executor) close() {
	e.once.Do(func() {
		close(e.done)
		e.L.Close()
	})
}
